package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"paperflow/internal/application"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// DownloadSources are the reference kinds DownloadCommand understands
var DownloadSources = []string{"url", "arxiv", "doi", "scholar"}

// DownloadResult reports where a downloaded paper landed
type DownloadResult struct {
	Path       string
	DocumentID string
	Title      string
	Existed    bool
	Message    string
}

// DownloadCommand fetches a paper into the watched papers directory. The
// file appears there in one rename, so a running watcher picks it up whole.
type DownloadCommand struct {
	fetcher   ports.PaperFetcher
	papersDir string
	Source    string
	Ref       string
	Name      string // optional file name override, without .pdf
}

// NewDownloadCommand creates a new DownloadCommand
func NewDownloadCommand(fetcher ports.PaperFetcher, papersDir, source, ref string) *DownloadCommand {
	return &DownloadCommand{
		fetcher:   fetcher,
		papersDir: papersDir,
		Source:    source,
		Ref:       ref,
	}
}

// Validate checks the download request
func (c *DownloadCommand) Validate() error {
	if c.papersDir == "" {
		return &application.ConfigurationError{Field: "paths.papers", Message: "is required to download papers"}
	}
	known := false
	for _, s := range DownloadSources {
		known = known || c.Source == s
	}
	if !known {
		return fmt.Errorf("unknown source %q (expected %s)", c.Source, strings.Join(DownloadSources, ", "))
	}
	if strings.TrimSpace(c.Ref) == "" {
		return errors.New("nothing to download")
	}
	if strings.ContainsAny(c.Name, `/\`) {
		return fmt.Errorf("name %q must not contain a path separator", c.Name)
	}
	return nil
}

// Execute resolves the reference and downloads the PDF unless a file with
// the same name is already there
func (c *DownloadCommand) Execute(ctx context.Context) (*DownloadResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	paper, err := c.fetcher.Resolve(ctx, c.Source, c.Ref)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(paper.Name, ".pdf")
	if c.Name != "" {
		name = strings.TrimSuffix(c.Name, ".pdf")
	}
	if name == "" {
		name = "paper"
	}

	filename := name + ".pdf"
	result := &DownloadResult{
		Path:       filepath.Join(c.papersDir, filename),
		DocumentID: domain.NormalizeID(filename),
		Title:      paper.Title,
	}

	if _, err := os.Stat(result.Path); err == nil {
		result.Existed = true
		result.Message = fmt.Sprintf("Already exists: %s", result.Path)
		return result, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to check %s: %w", result.Path, err)
	}

	if err := c.fetcher.Fetch(ctx, paper.PDFURL, result.Path); err != nil {
		return nil, err
	}
	result.Message = fmt.Sprintf("Saved %s as %s", result.Path, result.DocumentID)
	return result, nil
}

// WebSearchCommand searches public paper indexes
type WebSearchCommand struct {
	searcher ports.WebSearcher
	Engine   string
	Query    string
	Limit    int
}

// NewWebSearchCommand creates a new WebSearchCommand
func NewWebSearchCommand(searcher ports.WebSearcher, engine, query string, limit int) *WebSearchCommand {
	return &WebSearchCommand{searcher: searcher, Engine: engine, Query: query, Limit: limit}
}

// Validate checks the search request
func (c *WebSearchCommand) Validate() error {
	if strings.TrimSpace(c.Query) == "" {
		return errors.New("search query is required")
	}
	if c.Limit <= 0 || c.Limit > 100 {
		return fmt.Errorf("limit must be between 1 and 100, got %d", c.Limit)
	}
	return nil
}

// Execute runs the search
func (c *WebSearchCommand) Execute(ctx context.Context) ([]ports.WebResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c.searcher.Search(ctx, c.Engine, c.Query, c.Limit)
}
