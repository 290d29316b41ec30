package citations

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	"paperflow/internal/application"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// Status says whether a cited key exists in the bibliography
type Status int

const (
	StatusPresent Status = iota
	StatusMissing
)

func (s Status) String() string {
	if s == StatusMissing {
		return "missing"
	}
	return "present"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is the verifier's reading of a citation's claim
type Outcome int

const (
	OutcomeUnchecked Outcome = iota
	OutcomeVerified
	OutcomeNeedsRevision
	OutcomeIncorrect
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeNeedsRevision:
		return "needs revision"
	case OutcomeIncorrect:
		return "incorrect"
	default:
		return "unchecked"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the check of one citation
type Result struct {
	Citation
	Status     Status  `json:"status"`
	Outcome    Outcome `json:"outcome"`
	Confidence float64 `json:"confidence,omitempty"`
	Quote      string  `json:"quote,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

// Report collects the results of one checker run
type Report struct {
	Files      []string `json:"files"`
	BibEntries int      `json:"bibEntries"`
	Results    []Result `json:"results"`
}

// MissingKeys lists the distinct keys absent from the bibliography
func (r *Report) MissingKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, res := range r.Results {
		if res.Status == StatusMissing && !seen[res.Key] {
			seen[res.Key] = true
			keys = append(keys, res.Key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Flagged counts citations the verifier judged as needing revision or incorrect
func (r *Report) Flagged() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == OutcomeNeedsRevision || res.Outcome == OutcomeIncorrect {
			n++
		}
	}
	return n
}

// Err turns the report into the hook's verdict. Missing keys always fail;
// flagged claims fail only when block is set.
func (r *Report) Err(block bool) error {
	if missing := r.MissingKeys(); len(missing) > 0 {
		return &application.CitationMissingError{Keys: missing}
	}
	if n := r.Flagged(); block && n > 0 {
		return &application.LowConfidenceError{Count: n}
	}
	return nil
}

// Checker matches manuscript citations against a bibliography and, unless
// quick, verifies each claim against the locally converted paper.
type Checker struct {
	artifacts     ports.ArtifactStore
	verifier      ports.Summarizer // nil behaves like quick mode
	minConfidence float64
	workers       int
	logger        *slog.Logger
}

// NewChecker creates a Checker. verifier may be nil.
func NewChecker(artifacts ports.ArtifactStore, verifier ports.Summarizer, minConfidence float64, workers int) *Checker {
	if workers < 1 {
		workers = 1
	}
	return &Checker{
		artifacts:     artifacts,
		verifier:      verifier,
		minConfidence: minConfidence,
		workers:       workers,
		logger:        slog.Default(),
	}
}

// Check runs the checker over paths (files or directories) against bibPath
func (c *Checker) Check(ctx context.Context, paths []string, bibPath string, quick bool) (*Report, error) {
	bib, err := os.Open(bibPath)
	if err != nil {
		return nil, &application.ConfigurationError{Field: "citations.bibliography", Message: err.Error()}
	}
	defer bib.Close()

	keys, err := ParseBibKeys(bib)
	if err != nil {
		return nil, err
	}

	files, err := CollectFiles(paths)
	if err != nil {
		return nil, err
	}

	report := &Report{Files: files, BibEntries: len(keys)}
	for _, file := range files {
		cites, err := extractFile(file)
		if err != nil {
			return nil, err
		}
		for _, cite := range cites {
			res := Result{Citation: cite, Status: StatusPresent}
			if !keys[cite.Key] {
				res.Status = StatusMissing
				res.Notes = "citation key not found in bibliography"
			}
			report.Results = append(report.Results, res)
		}
	}

	if quick || c.verifier == nil {
		return report, nil
	}
	if err := c.verify(ctx, report.Results); err != nil {
		return nil, err
	}
	return report, nil
}

// verify fills in outcomes for present citations whose paper is available locally
func (c *Checker) verify(ctx context.Context, results []Result) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i := range results {
		res := &results[i]
		if res.Status != StatusPresent {
			continue
		}
		id := domain.NormalizeID(res.Key + ".pdf")
		text, err := c.artifacts.Read(id, domain.ArtifactText)
		if err != nil {
			res.Notes = "paper not in library"
			continue
		}

		g.Go(func() error {
			v, err := c.verifier.Verify(ctx, id, res.Context, string(text))
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Warn("Verification failed.", "key", res.Key, "error", err)
				res.Notes = fmt.Sprintf("verification failed: %v", err)
				return nil
			}
			res.Outcome = c.judge(v)
			res.Confidence = v.Confidence
			res.Quote = v.Quote
			res.Notes = v.Notes
			return nil
		})
	}
	return g.Wait()
}

// judge maps a verification onto the hook's three outcomes
func (c *Checker) judge(v *ports.Verification) Outcome {
	switch {
	case v.Verdict == ports.VerdictNotVerified:
		return OutcomeIncorrect
	case v.Verdict == ports.VerdictVerified && v.Confidence >= c.minConfidence:
		return OutcomeVerified
	default:
		return OutcomeNeedsRevision
	}
}

func extractFile(path string) ([]Citation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Extract(f, path)
}
