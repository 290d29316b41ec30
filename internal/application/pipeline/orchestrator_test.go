package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"paperflow/internal/application"
	"paperflow/internal/domain"
)

func TestProcess_NewPaperReachesIndexed(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	out, err := h.orch.Process(ctx, paperEvent("vaswani2017", "fp1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stage != domain.StageIndexed {
		t.Fatalf("expected Indexed, got %s", out.Stage)
	}

	want := []domain.Stage{
		domain.StageDetected,
		domain.StageConverting,
		domain.StageConverted,
		domain.StageSummarizing,
		domain.StageSummarized,
		domain.StageIndexing,
		domain.StageIndexed,
	}
	got := h.ledger.stages("vaswani2017")
	if len(got) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	for _, kind := range []domain.ArtifactKind{domain.ArtifactText, domain.ArtifactSummary} {
		art, _ := h.artifacts.Current("vaswani2017", kind, "fp1")
		if art == nil {
			t.Errorf("expected current %s artifact", kind)
		}
	}

	rec := h.ledger.record("vaswani2017")
	if rec.IndexRef != "mem://vaswani2017" {
		t.Errorf("expected index ref, got %q", rec.IndexRef)
	}
	if rec.Attempts != 0 || rec.LastError != "" {
		t.Errorf("expected clean retry state, got attempts=%d lastError=%q", rec.Attempts, rec.LastError)
	}
}

func TestProcess_SecondRunCallsNothing(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	ev := paperEvent("vaswani2017", "fp1")

	for range 2 {
		if _, err := h.orch.Process(ctx, ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if n := h.converter.count(); n != 1 {
		t.Errorf("expected 1 convert call, got %d", n)
	}
	if n := h.summarizer.count(); n != 1 {
		t.Errorf("expected 1 summarize call, got %d", n)
	}
	if n := h.indexer.count(); n != 1 {
		t.Errorf("expected 1 index call, got %d", n)
	}
}

func TestProcess_LostLedgerReusesArtifacts(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	ev := paperEvent("vaswani2017", "fp1")

	if _, err := h.orch.Process(ctx, ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fresh := newMemLedger()
	orch := NewOrchestrator(fresh, h.artifacts, h.converter, h.summarizer, h.indexer, WithClock(h.clock.Now))
	out, err := orch.Process(ctx, ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stage != domain.StageIndexed {
		t.Fatalf("expected Indexed, got %s", out.Stage)
	}
	if h.converter.count() != 1 || h.summarizer.count() != 1 || h.indexer.count() != 1 {
		t.Errorf("expected no repeated adapter calls, got convert=%d summarize=%d index=%d",
			h.converter.count(), h.summarizer.count(), h.indexer.count())
	}
}

func TestProcess_FingerprintChangeStartsOver(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.orch.Process(ctx, paperEvent("vaswani2017", "fp1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := h.orch.Process(ctx, paperEvent("vaswani2017", "fp2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stage != domain.StageIndexed {
		t.Fatalf("expected Indexed, got %s", out.Stage)
	}

	if h.converter.count() != 2 || h.summarizer.count() != 2 || h.indexer.count() != 2 {
		t.Errorf("expected every stage to rerun, got convert=%d summarize=%d index=%d",
			h.converter.count(), h.summarizer.count(), h.indexer.count())
	}
	if art, _ := h.artifacts.Current("vaswani2017", domain.ArtifactText, "fp2"); art == nil {
		t.Error("expected text artifact derived from the new fingerprint")
	}
	if rec := h.ledger.record("vaswani2017"); rec.SourceFingerprint != "fp2" {
		t.Errorf("expected fingerprint fp2, got %q", rec.SourceFingerprint)
	}

	stages := h.ledger.stages("vaswani2017")
	detected := 0
	for _, s := range stages {
		if s == domain.StageDetected {
			detected++
		}
	}
	if detected != 2 {
		t.Errorf("expected the record to pass through Detected twice, got %v", stages)
	}
}

func TestProcess_TransientFailuresBackOff(t *testing.T) {
	h := newHarness()
	h.converter.errs = []error{
		application.Transient("convert", errors.New("503 overloaded")),
		application.Transient("convert", errors.New("503 overloaded")),
	}
	ctx := context.Background()
	ev := paperEvent("vaswani2017", "fp1")

	out, err := h.orch.Process(ctx, ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.RetryAfter != time.Second {
		t.Fatalf("expected 1s backoff, got %v", out.RetryAfter)
	}
	rec := h.ledger.record("vaswani2017")
	if rec.Stage != domain.StageConverting || rec.Attempts != 1 || rec.LastError == "" {
		t.Fatalf("unexpected record after first failure: %+v", rec)
	}

	// too early: nothing runs
	out, _ = h.orch.Process(ctx, ev)
	if out.RetryAfter != time.Second || h.converter.count() != 1 {
		t.Fatalf("expected early run to wait, got retryAfter=%v calls=%d", out.RetryAfter, h.converter.count())
	}

	h.clock.Advance(time.Second)
	out, _ = h.orch.Process(ctx, ev)
	if out.RetryAfter != 2*time.Second {
		t.Fatalf("expected 2s backoff, got %v", out.RetryAfter)
	}

	h.clock.Advance(2 * time.Second)
	out, err = h.orch.Process(ctx, ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stage != domain.StageIndexed {
		t.Fatalf("expected Indexed, got %s", out.Stage)
	}
	if n := h.converter.count(); n != 3 {
		t.Errorf("expected 3 convert attempts, got %d", n)
	}
	rec = h.ledger.record("vaswani2017")
	if rec.Attempts != 0 || rec.LastError != "" || !rec.NextAttemptAt.IsZero() {
		t.Errorf("expected retry state cleared, got %+v", rec)
	}
}

func TestProcess_FailureClassification(t *testing.T) {
	tests := []struct {
		name       string
		errs       []error
		runs       int
		wantStage  domain.Stage
		wantCalls  int
		wantPrefix string
	}{
		{
			name:       "fatal fails immediately",
			errs:       []error{application.Fatal("convert", errors.New("not a pdf"))},
			runs:       1,
			wantStage:  domain.StageFailed,
			wantCalls:  1,
			wantPrefix: "unsupported input",
		},
		{
			name: "transient exhausts attempts",
			errs: []error{
				application.Transient("convert", errors.New("timeout")),
				application.Transient("convert", errors.New("timeout")),
				application.Transient("convert", errors.New("timeout")),
			},
			runs:       3,
			wantStage:  domain.StageFailed,
			wantCalls:  3,
			wantPrefix: "gave up after 3 attempts",
		},
		{
			name:       "unclassified error is retried",
			errs:       []error{errors.New("connection reset")},
			runs:       1,
			wantStage:  domain.StageConverting,
			wantCalls:  1,
			wantPrefix: "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.converter.errs = tt.errs
			ev := paperEvent("corrupt", "fp1")

			for range tt.runs {
				if _, err := h.orch.Process(context.Background(), ev); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				h.clock.Advance(time.Minute)
			}

			rec := h.ledger.record("corrupt")
			if rec.Stage != tt.wantStage {
				t.Errorf("expected stage %s, got %s", tt.wantStage, rec.Stage)
			}
			if n := h.converter.count(); n != tt.wantCalls {
				t.Errorf("expected %d convert calls, got %d", tt.wantCalls, n)
			}
			if !strings.HasPrefix(rec.LastError, tt.wantPrefix) {
				t.Errorf("expected lastError starting %q, got %q", tt.wantPrefix, rec.LastError)
			}
			if tt.wantStage == domain.StageFailed {
				if h.summarizer.count() != 0 || h.indexer.count() != 0 {
					t.Error("expected later stages never to run")
				}
			}
		})
	}
}

func TestProcess_FailedIsNotRetried(t *testing.T) {
	h := newHarness()
	h.converter.errs = []error{application.Fatal("convert", errors.New("encrypted"))}
	ctx := context.Background()
	ev := paperEvent("locked", "fp1")

	for range 3 {
		if _, err := h.orch.Process(ctx, ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		h.clock.Advance(time.Hour)
	}
	if n := h.converter.count(); n != 1 {
		t.Errorf("expected a single attempt, got %d", n)
	}

	// a new fingerprint revives it
	out, err := h.orch.Process(ctx, paperEvent("locked", "fp2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stage != domain.StageIndexed {
		t.Errorf("expected Indexed after fingerprint change, got %s", out.Stage)
	}
}

func TestProcess_MissingToolLeavesRecordResumable(t *testing.T) {
	h := newHarness()
	missing := &application.ConfigurationError{Field: "summarizer.binary", Message: "claude CLI not installed"}
	h.summarizer.errs = []error{missing}
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := h.orch.Process(ctx, paperEvent(id, "fp-"+id))
		var cfgErr *application.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%s: expected ConfigurationError, got %v", id, err)
		}
		h.summarizer.errs = []error{missing}
	}

	for _, id := range []string{"a", "b"} {
		rec := h.ledger.record(id)
		if rec.Stage != domain.StageSummarizing {
			t.Errorf("%s: expected Summarizing, got %s", id, rec.Stage)
		}
		if rec.Attempts != 0 || rec.LastError != "" {
			t.Errorf("%s: expected no failure bookkeeping, got attempts=%d lastError=%q", id, rec.Attempts, rec.LastError)
		}
	}

	// once the tool is installed the same record completes
	h.summarizer.errs = nil
	out, err := h.orch.Process(ctx, paperEvent("a", "fp-a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stage != domain.StageIndexed {
		t.Errorf("expected Indexed after fixing the tool, got %s", out.Stage)
	}
}

func TestProcess_LaterFailureKeepsEarlierArtifacts(t *testing.T) {
	h := newHarness()
	h.summarizer.errs = []error{application.Fatal("summarize", errors.New("prompt is too long"))}

	out, err := h.orch.Process(context.Background(), paperEvent("huge", "fp1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stage != domain.StageFailed {
		t.Fatalf("expected Failed, got %s", out.Stage)
	}
	if art, _ := h.artifacts.Current("huge", domain.ArtifactText, "fp1"); art == nil {
		t.Error("expected the text artifact to survive the failed summary")
	}
	if h.indexer.count() != 0 {
		t.Error("expected indexing never to run")
	}
}

func TestProcess_FailureIsIsolatedPerDocument(t *testing.T) {
	h := newHarness()
	h.converter.errs = []error{application.Fatal("convert", errors.New("not a pdf"))}
	ctx := context.Background()

	if _, err := h.orch.Process(ctx, paperEvent("a", "fpA")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := h.orch.Process(ctx, paperEvent("b", "fpB")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s := h.ledger.record("a").Stage; s != domain.StageFailed {
		t.Errorf("expected a Failed, got %s", s)
	}
	if s := h.ledger.record("b").Stage; s != domain.StageIndexed {
		t.Errorf("expected b Indexed, got %s", s)
	}
}

func TestProcess_SameDocumentIsSerialized(t *testing.T) {
	h := newHarness()
	h.converter.delay = 20 * time.Millisecond
	ev := paperEvent("vaswani2017", "fp1")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.orch.Process(context.Background(), ev); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := h.converter.overlap.Load(); n != 0 {
		t.Errorf("expected no overlapping convert calls, got %d", n)
	}
	if n := h.converter.count(); n != 1 {
		t.Errorf("expected 1 convert call, got %d", n)
	}
}

func TestProcess_ResumesFromPersistedStage(t *testing.T) {
	tests := []struct {
		name          string
		stage         domain.Stage
		artifacts     []domain.ArtifactKind
		wantConvert   int
		wantSummarize int
	}{
		{
			name:          "interrupted while converting",
			stage:         domain.StageConverting,
			wantConvert:   1,
			wantSummarize: 1,
		},
		{
			name:          "summarized with artifacts on disk",
			stage:         domain.StageSummarized,
			artifacts:     []domain.ArtifactKind{domain.ArtifactText, domain.ArtifactSummary},
			wantConvert:   0,
			wantSummarize: 0,
		},
		{
			name:          "summarized but artifacts lost",
			stage:         domain.StageSummarized,
			wantConvert:   1,
			wantSummarize: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			ctx := context.Background()

			rec := domain.NewPaperRecord("resume", "/papers/resume.pdf", "fp1", h.clock.Now())
			rec.Stage = tt.stage
			_ = h.ledger.Upsert(ctx, rec)
			for _, kind := range tt.artifacts {
				_, _ = h.artifacts.Put("resume", kind, "fp1", []byte("content"))
			}

			out, err := h.orch.Process(ctx, paperEvent("resume", "fp1"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Stage != domain.StageIndexed {
				t.Fatalf("expected Indexed, got %s", out.Stage)
			}
			if n := h.converter.count(); n != tt.wantConvert {
				t.Errorf("expected %d convert calls, got %d", tt.wantConvert, n)
			}
			if n := h.summarizer.count(); n != tt.wantSummarize {
				t.Errorf("expected %d summarize calls, got %d", tt.wantSummarize, n)
			}
			if n := h.indexer.count(); n != 1 {
				t.Errorf("expected 1 index call, got %d", n)
			}
		})
	}
}

func TestProcess_CancellationLeavesLastPersistedStage(t *testing.T) {
	h := newHarness()
	h.converter.delay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.orch.Process(ctx, paperEvent("slow", "fp1"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	rec := h.ledger.record("slow")
	if rec.Stage != domain.StageConverting {
		t.Errorf("expected Converting, got %s", rec.Stage)
	}
	if rec.Attempts != 0 || rec.LastError != "" {
		t.Errorf("expected interruption not to count as a failure, got %+v", rec)
	}
}

func TestProcess_DisabledStagesPassThrough(t *testing.T) {
	ledger := newMemLedger()
	artifacts := newMemArtifacts()
	converter := &fakeConverter{}
	orch := NewOrchestrator(ledger, artifacts, converter, nil, nil)

	out, err := orch.Process(context.Background(), paperEvent("local", "fp1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stage != domain.StageIndexed {
		t.Fatalf("expected Indexed, got %s", out.Stage)
	}
	if art, _ := artifacts.Lookup("local", domain.ArtifactSummary); art != nil {
		t.Error("expected no summary artifact")
	}
	if rec := ledger.record("local"); rec.IndexRef != "" {
		t.Errorf("expected empty index ref, got %q", rec.IndexRef)
	}
}
