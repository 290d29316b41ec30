package commands

import (
	"context"
	"fmt"
	"strings"

	"paperflow/internal/application"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// ReadResult is the converted text of one paper, or one section of it
type ReadResult struct {
	DocumentID string
	Path       string
	Content    string
	// Matched is true when the ID was resolved from a partial name
	Matched bool
}

// ReadPaperCommand reads a paper's converted markdown
type ReadPaperCommand struct {
	ledger     ports.Ledger
	artifacts  ports.ArtifactStore
	DocumentID string
	Section    string
}

// NewReadPaperCommand creates a new ReadPaperCommand
func NewReadPaperCommand(ledger ports.Ledger, artifacts ports.ArtifactStore, documentID, section string) *ReadPaperCommand {
	return &ReadPaperCommand{
		ledger:     ledger,
		artifacts:  artifacts,
		DocumentID: documentID,
		Section:    section,
	}
}

// Validate checks the read request
func (c *ReadPaperCommand) Validate() error {
	return application.ValidateRequired("documentID", c.DocumentID)
}

// Execute runs the read command
func (c *ReadPaperCommand) Execute(ctx context.Context) (*ReadResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	res, err := readArtifact(ctx, c.ledger, c.artifacts, c.DocumentID, domain.ArtifactText)
	if err != nil {
		return nil, err
	}

	if c.Section == "" {
		return res, nil
	}
	section, ok := domain.ExtractSection(res.Content, c.Section)
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s (headings: %s)", application.ErrSectionNotFound,
			c.Section, res.DocumentID, strings.Join(limit(domain.Headings(res.Content), 12), "; "))
	}
	res.Content = section
	return res, nil
}

// SummaryCommand reads a paper's generated summary
type SummaryCommand struct {
	ledger     ports.Ledger
	artifacts  ports.ArtifactStore
	DocumentID string
}

// NewSummaryCommand creates a new SummaryCommand
func NewSummaryCommand(ledger ports.Ledger, artifacts ports.ArtifactStore, documentID string) *SummaryCommand {
	return &SummaryCommand{ledger: ledger, artifacts: artifacts, DocumentID: documentID}
}

// Validate checks the summary request
func (c *SummaryCommand) Validate() error {
	return application.ValidateRequired("documentID", c.DocumentID)
}

// Execute runs the summary command
func (c *SummaryCommand) Execute(ctx context.Context) (*ReadResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return readArtifact(ctx, c.ledger, c.artifacts, c.DocumentID, domain.ArtifactSummary)
}

func readArtifact(ctx context.Context, ledger ports.Ledger, artifacts ports.ArtifactStore, name string, kind domain.ArtifactKind) (*ReadResult, error) {
	id, err := ResolveID(ctx, ledger, name)
	if err != nil {
		return nil, err
	}
	content, err := artifacts.Read(id, kind)
	if err != nil {
		return nil, err
	}
	return &ReadResult{
		DocumentID: id,
		Path:       artifacts.Path(id, kind),
		Content:    string(content),
		Matched:    id != strings.TrimSpace(name),
	}, nil
}

func limit(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
