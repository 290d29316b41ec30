package commands

import (
	"context"
	"fmt"
	"time"

	"paperflow/internal/application"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// ResetResult contains the result of resetting a record
type ResetResult struct {
	Record  domain.PaperRecord
	Message string
}

// ResetCommand sends a Failed record back to Detected so the next watch
// run processes it again. Purge also drops its derived artifacts.
type ResetCommand struct {
	ledger     ports.Ledger
	artifacts  ports.ArtifactStore
	DocumentID string
	Purge      bool
	// Force allows resetting records that are not Failed
	Force bool
}

// NewResetCommand creates a new ResetCommand
func NewResetCommand(ledger ports.Ledger, artifacts ports.ArtifactStore, documentID string, purge, force bool) *ResetCommand {
	return &ResetCommand{
		ledger:     ledger,
		artifacts:  artifacts,
		DocumentID: documentID,
		Purge:      purge,
		Force:      force,
	}
}

// Validate checks the reset request
func (c *ResetCommand) Validate() error {
	return application.ValidateDocumentID("documentID", c.DocumentID)
}

// Execute runs the reset
func (c *ResetCommand) Execute(ctx context.Context) (*ResetResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	rec, err := c.ledger.Get(ctx, c.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	if rec == nil {
		return nil, &application.NotFoundError{What: "paper", ID: c.DocumentID}
	}
	if rec.Stage != domain.StageFailed && !c.Force {
		return nil, &application.ValidationError{
			Field:   "documentID",
			Message: fmt.Sprintf("%s is %s, only failed papers can be reset (use --force)", rec.ID, rec.Stage),
		}
	}

	if c.Purge {
		if err := c.artifacts.Clear(rec.ID, domain.ArtifactText, domain.ArtifactSummary); err != nil {
			return nil, fmt.Errorf("failed to purge artifacts: %w", err)
		}
	}

	previous := rec.Stage
	rec.Reset(rec.SourcePath, rec.SourceFingerprint, time.Now())
	if err := c.ledger.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist record: %w", err)
	}

	return &ResetResult{
		Record:  *rec,
		Message: fmt.Sprintf("Reset %s: %s -> %s", rec.ID, previous, rec.Stage),
	}, nil
}
