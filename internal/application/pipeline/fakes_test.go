package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"paperflow/internal/application"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

type memLedger struct {
	mu      sync.Mutex
	records map[string]domain.PaperRecord
	history map[string][]domain.Stage
}

func newMemLedger() *memLedger {
	return &memLedger{
		records: make(map[string]domain.PaperRecord),
		history: make(map[string][]domain.Stage),
	}
}

func (l *memLedger) Get(_ context.Context, id string) (*domain.PaperRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (l *memLedger) Upsert(_ context.Context, rec *domain.PaperRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, ok := l.records[rec.ID]
	if !ok || prev.Stage != rec.Stage {
		l.history[rec.ID] = append(l.history[rec.ID], rec.Stage)
	}
	l.records[rec.ID] = *rec
	return nil
}

func (l *memLedger) Scan(_ context.Context, stages ...domain.Stage) ([]domain.PaperRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.PaperRecord
	for _, rec := range l.records {
		if len(stages) == 0 || containsStage(stages, rec.Stage) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *memLedger) Close() error { return nil }

func (l *memLedger) record(id string) domain.PaperRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[id]
}

func (l *memLedger) stages(id string) []domain.Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Stage(nil), l.history[id]...)
}

func containsStage(stages []domain.Stage, s domain.Stage) bool {
	for _, st := range stages {
		if st == s {
			return true
		}
	}
	return false
}

type memArtifact struct {
	content  []byte
	sourceFP string
}

type memArtifacts struct {
	mu    sync.Mutex
	items map[string]memArtifact
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{items: make(map[string]memArtifact)}
}

func artifactKey(id string, kind domain.ArtifactKind) string {
	return id + "/" + kind.String()
}

func (a *memArtifacts) Lookup(id string, kind domain.ArtifactKind) (*domain.Artifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	item, ok := a.items[artifactKey(id, kind)]
	if !ok {
		return nil, nil
	}
	return &domain.Artifact{
		DocumentID:        id,
		Kind:              kind,
		Path:              a.Path(id, kind),
		Fingerprint:       domain.FingerprintBytes(item.content),
		SourceFingerprint: item.sourceFP,
	}, nil
}

func (a *memArtifacts) Current(id string, kind domain.ArtifactKind, sourceFP string) (*domain.Artifact, error) {
	art, err := a.Lookup(id, kind)
	if err != nil || art == nil || art.SourceFingerprint != sourceFP {
		return nil, err
	}
	return art, nil
}

func (a *memArtifacts) Put(id string, kind domain.ArtifactKind, sourceFP string, content []byte) (*domain.Artifact, error) {
	a.mu.Lock()
	a.items[artifactKey(id, kind)] = memArtifact{content: content, sourceFP: sourceFP}
	a.mu.Unlock()
	return a.Lookup(id, kind)
}

func (a *memArtifacts) Read(id string, kind domain.ArtifactKind) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	item, ok := a.items[artifactKey(id, kind)]
	if !ok {
		return nil, &application.NotFoundError{What: kind.String(), ID: id}
	}
	return item.content, nil
}

func (a *memArtifacts) Clear(id string, kinds ...domain.ArtifactKind) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, kind := range kinds {
		delete(a.items, artifactKey(id, kind))
	}
	return nil
}

func (a *memArtifacts) Path(id string, kind domain.ArtifactKind) string {
	return "/mem/" + artifactKey(id, kind)
}

func (a *memArtifacts) AssetDir(id string) string {
	return "/mem/assets/" + id
}

// script hands out errors in order, then nil forever. It also tracks how
// many calls overlap.
type script struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	delay   time.Duration
	running atomic.Int32
	overlap atomic.Int32
}

func (s *script) next(ctx context.Context) error {
	if n := s.running.Add(1); n > 1 {
		s.overlap.Add(1)
	}
	defer s.running.Add(-1)

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *script) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeConverter struct{ script }

func (c *fakeConverter) Name() string { return "fake" }

func (c *fakeConverter) Convert(ctx context.Context, req ports.ConvertRequest) (string, error) {
	if err := c.next(ctx); err != nil {
		return "", err
	}
	return "# " + req.DocumentID + "\n\nbody text", nil
}

type fakeSummarizer struct{ script }

func (s *fakeSummarizer) Name() string { return "fake" }

func (s *fakeSummarizer) Summarize(ctx context.Context, id, text string) (string, error) {
	if err := s.next(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("# Summary: %s\n\n%d bytes", id, len(text)), nil
}

func (s *fakeSummarizer) Verify(ctx context.Context, id, claim, text string) (*ports.Verification, error) {
	return &ports.Verification{Verdict: ports.VerdictVerified, Confidence: 1}, nil
}

type fakeIndexer struct {
	script
	mu      sync.Mutex
	indexed map[string]string // id -> fingerprint
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{indexed: make(map[string]string)}
}

func (x *fakeIndexer) Name() string { return "fake" }

func (x *fakeIndexer) Has(_ context.Context, id, fp string) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.indexed[id] == fp, nil
}

func (x *fakeIndexer) Index(ctx context.Context, doc ports.IndexDocument) (string, error) {
	if err := x.next(ctx); err != nil {
		return "", err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.indexed[doc.DocumentID] = doc.Fingerprint
	return "mem://" + doc.DocumentID, nil
}

func (x *fakeIndexer) Search(context.Context, string, int) ([]ports.SearchHit, error) {
	return nil, nil
}

func (x *fakeIndexer) Passages(context.Context, string, string, int) ([]string, error) {
	return nil, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	ledger     *memLedger
	artifacts  *memArtifacts
	converter  *fakeConverter
	summarizer *fakeSummarizer
	indexer    *fakeIndexer
	clock      *fakeClock
	orch       *Orchestrator
}

func newHarness() *harness {
	h := &harness{
		ledger:     newMemLedger(),
		artifacts:  newMemArtifacts(),
		converter:  &fakeConverter{},
		summarizer: &fakeSummarizer{},
		indexer:    newFakeIndexer(),
		clock:      newFakeClock(),
	}
	h.orch = NewOrchestrator(h.ledger, h.artifacts, h.converter, h.summarizer, h.indexer,
		WithClock(h.clock.Now))
	return h
}

func paperEvent(id, fp string) domain.Event {
	return domain.Event{ID: id, SourcePath: "/papers/" + id + ".pdf", Fingerprint: fp}
}
