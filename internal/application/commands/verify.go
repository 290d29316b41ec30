package commands

import (
	"context"
	"fmt"

	"paperflow/internal/application"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// VerifyResult is the verifier's judgement of a claim against one paper
type VerifyResult struct {
	DocumentID   string
	Claim        string
	Verification *ports.Verification
	Message      string
}

// VerifyCommand checks a claim against a paper's converted text.
// It never touches the ledger.
type VerifyCommand struct {
	ledger     ports.Ledger
	artifacts  ports.ArtifactStore
	verifier   ports.Summarizer
	DocumentID string
	Claim      string
}

// NewVerifyCommand creates a new VerifyCommand
func NewVerifyCommand(ledger ports.Ledger, artifacts ports.ArtifactStore, verifier ports.Summarizer, documentID, claim string) *VerifyCommand {
	return &VerifyCommand{
		ledger:     ledger,
		artifacts:  artifacts,
		verifier:   verifier,
		DocumentID: documentID,
		Claim:      claim,
	}
}

// Validate checks the verify request
func (c *VerifyCommand) Validate() error {
	if err := application.ValidateRequired("documentID", c.DocumentID); err != nil {
		return err
	}
	if err := application.ValidateRequired("claim", c.Claim); err != nil {
		return err
	}
	if c.verifier == nil {
		return &application.ConfigurationError{
			Field:   "summarizer.backend",
			Message: "claim verification needs a language model, none is configured",
		}
	}
	return nil
}

// Execute runs the verification
func (c *VerifyCommand) Execute(ctx context.Context) (*VerifyResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	doc, err := readArtifact(ctx, c.ledger, c.artifacts, c.DocumentID, domain.ArtifactText)
	if err != nil {
		return nil, err
	}

	v, err := c.verifier.Verify(ctx, doc.DocumentID, c.Claim, doc.Content)
	if err != nil {
		return nil, fmt.Errorf("verification failed: %w", err)
	}

	return &VerifyResult{
		DocumentID:   doc.DocumentID,
		Claim:        c.Claim,
		Verification: v,
		Message:      fmt.Sprintf("%s (confidence %.0f%%) against %s", v.Verdict, v.Confidence*100, doc.DocumentID),
	}, nil
}
