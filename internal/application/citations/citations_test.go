package citations

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"paperflow/internal/application"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "plain cite", input: `as shown by \cite{vaswani2017}.`, want: []string{"vaswani2017"}},
		{name: "natbib variants", input: `\citep{a} and \citet{b} and \citealp{c}`, want: []string{"a", "b", "c"}},
		{name: "several keys", input: `\cite{a, b,c}`, want: []string{"a", "b", "c"}},
		{name: "optional arguments", input: `\citep[see][p.~3]{devlin2019}`, want: []string{"devlin2019"}},
		{name: "starred", input: `\citet*{he2016}`, want: []string{"he2016"}},
		{name: "commented out", input: `% \cite{hidden}`, want: nil},
		{name: "escaped percent", input: `50\% gain \cite{shown}`, want: []string{"shown"}},
		{name: "no citations", input: `plain text`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cites, err := Extract(strings.NewReader(tt.input), "main.tex")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(cites) != len(tt.want) {
				t.Fatalf("expected %v, got %+v", tt.want, cites)
			}
			for i, c := range cites {
				if c.Key != tt.want[i] {
					t.Errorf("citation %d: expected %s, got %s", i, tt.want[i], c.Key)
				}
			}
		})
	}
}

func TestExtract_LineAndContext(t *testing.T) {
	src := "Intro.\n\nTransformers reached 28.4 BLEU \\cite{vaswani2017}.\nNext line.\n"
	cites, err := Extract(strings.NewReader(src), "ch1.tex")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cites) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(cites))
	}
	c := cites[0]
	if c.Line != 3 || c.File != "ch1.tex" {
		t.Errorf("unexpected location %s:%d", c.File, c.Line)
	}
	if !strings.Contains(c.Context, "28.4 BLEU") || !strings.Contains(c.Context, "Next line.") {
		t.Errorf("unexpected context %q", c.Context)
	}
}

func TestParseBibKeys(t *testing.T) {
	bib := `@string{acl = "ACL"}
@article{vaswani2017,
  title = {Attention Is All You Need},
}
@InProceedings{ devlin2019 ,
  title = {BERT},
}
@comment{ignored,}`

	keys, err := ParseBibKeys(strings.NewReader(bib))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 || !keys["vaswani2017"] || !keys["devlin2019"] {
		t.Errorf("unexpected keys %v", keys)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.tex"), "")
	writeFile(t, filepath.Join(dir, "chapters", "ch1.TEX"), "")
	writeFile(t, filepath.Join(dir, "chapters", "notes.md"), "")
	writeFile(t, filepath.Join(dir, ".git", "hook.tex"), "")
	extra := filepath.Join(t.TempDir(), "standalone.txt")
	writeFile(t, extra, "")

	files, err := CollectFiles([]string{dir, extra, filepath.Join(dir, "main.tex")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %v", files)
	}
	for _, f := range files {
		if strings.Contains(f, ".git") || strings.HasSuffix(f, ".md") {
			t.Errorf("unexpected file %s", f)
		}
	}
}

type memTexts map[string]string

func (m memTexts) Lookup(string, domain.ArtifactKind) (*domain.Artifact, error) { return nil, nil }
func (m memTexts) Current(string, domain.ArtifactKind, string) (*domain.Artifact, error) {
	return nil, nil
}
func (m memTexts) Put(string, domain.ArtifactKind, string, []byte) (*domain.Artifact, error) {
	return nil, errors.New("read only")
}
func (m memTexts) Read(id string, kind domain.ArtifactKind) ([]byte, error) {
	text, ok := m[id]
	if !ok || kind != domain.ArtifactText {
		return nil, &application.NotFoundError{What: "text", ID: id}
	}
	return []byte(text), nil
}
func (m memTexts) Clear(string, ...domain.ArtifactKind) error  { return nil }
func (m memTexts) Path(id string, _ domain.ArtifactKind) string { return id }
func (m memTexts) AssetDir(id string) string                    { return id }

type scriptedVerifier map[string]ports.Verification // paper id -> answer

func (s scriptedVerifier) Name() string { return "scripted" }
func (s scriptedVerifier) Summarize(context.Context, string, string) (string, error) {
	return "", nil
}
func (s scriptedVerifier) Verify(_ context.Context, id, claim, text string) (*ports.Verification, error) {
	v, ok := s[id]
	if !ok {
		return nil, errors.New("model unavailable")
	}
	return &v, nil
}

func manuscript(t *testing.T, tex, bib string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "thesis", "main.tex"), tex)
	bibPath := filepath.Join(dir, "references.bib")
	writeFile(t, bibPath, bib)
	return filepath.Join(dir, "thesis"), bibPath
}

func TestCheck_MissingKeyBlocks(t *testing.T) {
	texDir, bibPath := manuscript(t,
		"Self-attention replaced recurrence \\cite{vaswani2017}.\nBERT \\citep{devlin2019}.\n",
		"@article{devlin2019,\n title={BERT}\n}\n")

	checker := NewChecker(memTexts{}, nil, 0.7, 2)
	report, err := checker.Check(context.Background(), []string{texDir}, bibPath, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(report.Results))
	}
	if report.Results[0].Status != StatusMissing || report.Results[1].Status != StatusPresent {
		t.Errorf("unexpected statuses %v, %v", report.Results[0].Status, report.Results[1].Status)
	}

	var missing *application.CitationMissingError
	if !errors.As(report.Err(false), &missing) {
		t.Fatalf("expected CitationMissingError, got %v", report.Err(false))
	}
	if len(missing.Keys) != 1 || missing.Keys[0] != "vaswani2017" {
		t.Errorf("unexpected missing keys %v", missing.Keys)
	}

	out, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), `"key":"vaswani2017"`) || !strings.Contains(string(out), `"status":"missing"`) {
		t.Errorf("expected the missing key in JSON output: %s", out)
	}
}

func TestCheck_VerifiesClaims(t *testing.T) {
	texDir, bibPath := manuscript(t,
		"A \\cite{good}.\n\n\nB \\cite{weak}.\n\n\nC \\cite{wrong}.\n\n\nD \\cite{offline}.\n\n\nE \\cite{flaky}.\n",
		"@article{good,}\n@article{weak,}\n@article{wrong,}\n@article{offline,}\n@article{flaky,}\n")

	texts := memTexts{"good": "x", "weak": "x", "wrong": "x", "flaky": "x"}
	verifier := scriptedVerifier{
		"good":  {Verdict: ports.VerdictVerified, Confidence: 0.95, Quote: "q"},
		"weak":  {Verdict: ports.VerdictVerified, Confidence: 0.4},
		"wrong": {Verdict: ports.VerdictNotVerified, Confidence: 0.9},
	}

	report, err := NewChecker(texts, verifier, 0.7, 2).Check(context.Background(), []string{texDir}, bibPath, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]Outcome{
		"good":    OutcomeVerified,
		"weak":    OutcomeNeedsRevision,
		"wrong":   OutcomeIncorrect,
		"offline": OutcomeUnchecked,
		"flaky":   OutcomeUnchecked,
	}
	for _, res := range report.Results {
		if res.Outcome != want[res.Key] {
			t.Errorf("%s: expected %s, got %s", res.Key, want[res.Key], res.Outcome)
		}
	}

	if report.Flagged() != 2 {
		t.Errorf("expected 2 flagged claims, got %d", report.Flagged())
	}
	if err := report.Err(false); err != nil {
		t.Errorf("expected warn-only by default, got %v", err)
	}
	var low *application.LowConfidenceError
	if !errors.As(report.Err(true), &low) || low.Count != 2 {
		t.Errorf("expected LowConfidenceError for 2 claims, got %v", report.Err(true))
	}
}

func TestCheck_MissingBibliography(t *testing.T) {
	texDir, _ := manuscript(t, "", "")
	_, err := NewChecker(memTexts{}, nil, 0.7, 1).Check(context.Background(), []string{texDir}, "/nonexistent.bib", true)

	var cfgErr *application.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
