package commands

import (
	"context"
	"fmt"
	"log/slog"

	"paperflow/internal/application"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// UploadResult reports what an upload pass pushed to the remote index
type UploadResult struct {
	Uploaded []string
	Skipped  []string // already present remotely at the current fingerprint
	Failed   map[string]error
	Message  string
}

// UploadCommand pushes local papers missing from the remote index.
// Presence is checked by fingerprint first, so unchanged papers cost one
// metadata lookup and no indexing call.
type UploadCommand struct {
	ledger      ports.Ledger
	artifacts   ports.ArtifactStore
	indexer     ports.Indexer
	DocumentIDs []string // empty: every converted paper
}

// NewUploadCommand creates a new UploadCommand
func NewUploadCommand(ledger ports.Ledger, artifacts ports.ArtifactStore, indexer ports.Indexer, documentIDs ...string) *UploadCommand {
	return &UploadCommand{
		ledger:      ledger,
		artifacts:   artifacts,
		indexer:     indexer,
		DocumentIDs: documentIDs,
	}
}

// Validate checks the upload request
func (c *UploadCommand) Validate() error {
	return requireIndexer(c.indexer)
}

// Execute runs the upload
func (c *UploadCommand) Execute(ctx context.Context) (*UploadResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	records, err := c.targets(ctx)
	if err != nil {
		return nil, err
	}

	result := &UploadResult{Failed: make(map[string]error)}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := c.artifacts.Current(rec.ID, domain.ArtifactText, rec.SourceFingerprint)
		if err != nil {
			return nil, fmt.Errorf("failed to check text for %s: %w", rec.ID, err)
		}
		if text == nil {
			continue
		}

		has, err := c.indexer.Has(ctx, rec.ID, rec.SourceFingerprint)
		if err != nil {
			result.Failed[rec.ID] = err
			continue
		}
		if has {
			result.Skipped = append(result.Skipped, rec.ID)
			continue
		}

		if err := c.push(ctx, rec); err != nil {
			slog.Warn("Upload failed.", "documentId", rec.ID, "error", err)
			result.Failed[rec.ID] = err
			continue
		}
		result.Uploaded = append(result.Uploaded, rec.ID)
	}

	result.Message = fmt.Sprintf("Uploaded %d paper(s), %d already indexed, %d failed",
		len(result.Uploaded), len(result.Skipped), len(result.Failed))
	return result, nil
}

func (c *UploadCommand) targets(ctx context.Context) ([]domain.PaperRecord, error) {
	if len(c.DocumentIDs) == 0 {
		records, err := c.ledger.Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list papers: %w", err)
		}
		return records, nil
	}

	var records []domain.PaperRecord
	for _, name := range c.DocumentIDs {
		id, err := ResolveID(ctx, c.ledger, name)
		if err != nil {
			return nil, err
		}
		rec, err := c.ledger.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, nil
}

func (c *UploadCommand) push(ctx context.Context, rec domain.PaperRecord) error {
	text, err := c.artifacts.Read(rec.ID, domain.ArtifactText)
	if err != nil {
		return err
	}
	var summary []byte
	art, err := c.artifacts.Current(rec.ID, domain.ArtifactSummary, rec.SourceFingerprint)
	if err != nil {
		return err
	}
	if art != nil {
		if summary, err = c.artifacts.Read(rec.ID, domain.ArtifactSummary); err != nil {
			return err
		}
	}

	_, err = c.indexer.Index(ctx, ports.IndexDocument{
		DocumentID:  rec.ID,
		Fingerprint: rec.SourceFingerprint,
		Text:        string(text),
		Summary:     string(summary),
	})
	return err
}

// Err summarizes failed uploads as one error, nil when everything went through
func (r *UploadResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &application.AdapterError{
		Op:   "upload",
		Kind: application.FailureTransient,
		Err:  fmt.Errorf("%d paper(s) failed to upload", len(r.Failed)),
	}
}
