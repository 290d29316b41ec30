package cmd

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"paperflow/internal/application"
	"paperflow/internal/application/commands"
	"paperflow/internal/domain"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"configuration", &application.ConfigurationError{Field: "indexer.bucket", Message: "is required"}, 2},
		{"wrapped configuration", fmt.Errorf("startup: %w", &application.ConfigurationError{Field: "x"}), 2},
		{"paper not found", &application.NotFoundError{What: "paper", ID: "hinton2006"}, 3},
		{"section not found", fmt.Errorf("%w: %q", application.ErrSectionNotFound, "methods"), 3},
		{"ambiguous id", fmt.Errorf("%w: %w", application.ErrAmbiguousID, &application.NotFoundError{What: "paper", ID: "20"}), 3},
		{"missing citation", &application.CitationMissingError{Keys: []string{"vaswani2017"}}, 1},
		{"anything else", errors.New("disk full"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStatusLine(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		rec  domain.PaperRecord
		want []string
	}{
		{
			name: "indexed",
			rec:  domain.PaperRecord{ID: "vaswani2017", Stage: domain.StageIndexed},
			want: []string{"vaswani2017", "Indexed"},
		},
		{
			name: "waiting for retry",
			rec: domain.PaperRecord{
				ID: "devlin2019", Stage: domain.StageSummarizing, Attempts: 1,
				LastError: "rate limited", NextAttemptAt: now.Add(2 * time.Second),
			},
			want: []string{"Summarizing", "attempts=1", "retry in 2s", "rate limited"},
		},
		{
			name: "failed",
			rec:  domain.PaperRecord{ID: "corrupt", Stage: domain.StageFailed, Attempts: 1, LastError: "unsupported input: not a pdf"},
			want: []string{"Failed", "unsupported input: not a pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := statusLine(commands.PaperEntry{Record: tt.rec}, now)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("expected %q in %q", w, got)
				}
			}
			if strings.HasSuffix(got, " ") {
				t.Errorf("unexpected trailing space in %q", got)
			}
		})
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"watch", "list", "status", "read", "summary", "find", "verify", "upload", "reset", "cite", "dash", "serve", "download", "search-web"}
	have := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("command %q is not registered", name)
		}
	}
}
