package claudecli

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"paperflow/internal/application"
	"paperflow/internal/ports"
)

type fakeRun struct {
	stdout string
	stderr string
	err    error

	gotStdin string
	gotArgs  []string
}

func (f *fakeRun) run(_ context.Context, stdin string, args ...string) ([]byte, []byte, error) {
	f.gotStdin = stdin
	f.gotArgs = args
	return []byte(f.stdout), []byte(f.stderr), f.err
}

func newTestAssistant(f *fakeRun) *Assistant {
	a := NewAssistant(WithModel("haiku"), WithMaxChars(100))
	a.run = f.run
	return a
}

func failureKind(t *testing.T, err error) application.FailureKind {
	t.Helper()
	var adapterErr *application.AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("error %v is not an AdapterError", err)
	}
	return adapterErr.Kind
}

func TestSummarize_WritesHeaderAndSendsPromptOnStdin(t *testing.T) {
	f := &fakeRun{stdout: `{"type":"result","is_error":false,"result":"**Main Contribution**: attention is all you need"}`}
	a := newTestAssistant(f)

	got, err := a.Summarize(context.Background(), "attention", "The dominant sequence transduction models...")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if !strings.HasPrefix(got, "# Summary: attention\n\n> Source: `attention.md`\n\n") {
		t.Errorf("summary header missing: %q", got)
	}
	if !strings.Contains(f.gotStdin, "The dominant sequence transduction models") {
		t.Error("paper text not sent on stdin")
	}
	wantArgs := "-p --output-format json --model haiku"
	if strings.Join(f.gotArgs, " ") != wantArgs {
		t.Errorf("args = %q, want %q", strings.Join(f.gotArgs, " "), wantArgs)
	}
}

func TestSummarize_Failures(t *testing.T) {
	tests := []struct {
		name     string
		fake     *fakeRun
		text     string
		wantKind application.FailureKind
	}{
		{
			name:     "empty text is unsupported",
			fake:     &fakeRun{},
			text:     "   ",
			wantKind: application.FailureFatal,
		},
		{
			name:     "rate limited",
			fake:     &fakeRun{stderr: "Error: rate limit exceeded", err: errors.New("exit status 1")},
			text:     "paper",
			wantKind: application.FailureTransient,
		},
		{
			name:     "deadline",
			fake:     &fakeRun{err: context.DeadlineExceeded},
			text:     "paper",
			wantKind: application.FailureTransient,
		},
		{
			name:     "overloaded result",
			fake:     &fakeRun{stdout: `{"is_error":true,"result":"API Error: 529 Overloaded"}`},
			text:     "paper",
			wantKind: application.FailureTransient,
		},
		{
			name:     "prompt too long",
			fake:     &fakeRun{stdout: `{"is_error":true,"result":"Prompt is too long"}`},
			text:     "paper",
			wantKind: application.FailureFatal,
		},
		{
			name:     "garbage output",
			fake:     &fakeRun{stdout: "not json"},
			text:     "paper",
			wantKind: application.FailureTransient,
		},
		{
			name:     "refusal",
			fake:     &fakeRun{stdout: `{"is_error":false,"result":"I cannot provide a summary of this content."}`},
			text:     "paper",
			wantKind: application.FailureFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAssistant(tt.fake)
			_, err := a.Summarize(context.Background(), "attention", tt.text)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := failureKind(t, err); got != tt.wantKind {
				t.Errorf("kind = %s, want %s", got, tt.wantKind)
			}
		})
	}
}

func TestSummarize_MissingBinaryIsConfiguration(t *testing.T) {
	a := newTestAssistant(&fakeRun{err: &exec.Error{Name: "claude", Err: exec.ErrNotFound}})
	_, err := a.Summarize(context.Background(), "attention", "paper")

	var cfgErr *application.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Field != "summarizer.binary" {
		t.Errorf("field = %q, want summarizer.binary", cfgErr.Field)
	}
	var adapterErr *application.AdapterError
	if errors.As(err, &adapterErr) {
		t.Errorf("missing binary must not be an adapter failure, got %v", adapterErr)
	}
}

func TestIsAvailable(t *testing.T) {
	if NewAssistant(WithBinary(filepath.Join(t.TempDir(), "no-such-claude"))).IsAvailable() {
		t.Error("expected a missing binary to be unavailable")
	}
}

func TestVerify(t *testing.T) {
	f := &fakeRun{stdout: `{"is_error":false,"result":"{\"verified\": true, \"confidence\": 0.9, \"quote\": \"We propose a new simple network architecture\", \"notes\": \"stated in abstract\"}"}`}
	a := newTestAssistant(f)

	v, err := a.Verify(context.Background(), "attention", `Transformers rely on "attention"`, "paper text")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if v.Verdict != ports.VerdictVerified {
		t.Errorf("Verdict = %s, want verified", v.Verdict)
	}
	if v.Confidence != 0.9 {
		t.Errorf("Confidence = %v", v.Confidence)
	}
	if !strings.Contains(f.gotStdin, "Transformers rely on 'attention'") {
		t.Error("claim not embedded in prompt")
	}
}

func TestSummarize_TruncatesLongPapers(t *testing.T) {
	f := &fakeRun{stdout: `{"is_error":false,"result":"ok summary"}`}
	a := newTestAssistant(f)

	if _, err := a.Summarize(context.Background(), "long", strings.Repeat("y", 500)); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(f.gotStdin, strings.Repeat("y", 101)) {
		t.Error("prompt was not truncated to max chars")
	}
	if !strings.Contains(f.gotStdin, "[TRUNCATED]") {
		t.Error("truncation marker missing")
	}
}
