package commands

import (
	"context"
	"fmt"

	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// PaperEntry is one library entry as shown by list and status
type PaperEntry struct {
	Record     domain.PaperRecord
	HasSummary bool
}

// ListPapersCommand lists the papers that finished the pipeline
type ListPapersCommand struct {
	ledger    ports.Ledger
	artifacts ports.ArtifactStore
}

// NewListPapersCommand creates a new ListPapersCommand
func NewListPapersCommand(ledger ports.Ledger, artifacts ports.ArtifactStore) *ListPapersCommand {
	return &ListPapersCommand{ledger: ledger, artifacts: artifacts}
}

// Execute runs the list command
func (c *ListPapersCommand) Execute(ctx context.Context) ([]PaperEntry, error) {
	records, err := c.ledger.Scan(ctx, domain.StageIndexed)
	if err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	return withSummaries(c.artifacts, records)
}

// StatusCommand reports every record in the ledger, whatever its stage
type StatusCommand struct {
	ledger    ports.Ledger
	artifacts ports.ArtifactStore
	Stages    []domain.Stage
}

// NewStatusCommand creates a new StatusCommand, optionally filtered by stage
func NewStatusCommand(ledger ports.Ledger, artifacts ports.ArtifactStore, stages ...domain.Stage) *StatusCommand {
	return &StatusCommand{ledger: ledger, artifacts: artifacts, Stages: stages}
}

// Execute runs the status command
func (c *StatusCommand) Execute(ctx context.Context) ([]PaperEntry, error) {
	records, err := c.ledger.Scan(ctx, c.Stages...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger: %w", err)
	}
	return withSummaries(c.artifacts, records)
}

func withSummaries(artifacts ports.ArtifactStore, records []domain.PaperRecord) ([]PaperEntry, error) {
	entries := make([]PaperEntry, 0, len(records))
	for _, rec := range records {
		art, err := artifacts.Current(rec.ID, domain.ArtifactSummary, rec.SourceFingerprint)
		if err != nil {
			return nil, fmt.Errorf("failed to check summary for %s: %w", rec.ID, err)
		}
		entries = append(entries, PaperEntry{Record: rec, HasSummary: art != nil})
	}
	return entries, nil
}
