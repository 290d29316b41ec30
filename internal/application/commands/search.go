package commands

import (
	"context"
	"fmt"

	"paperflow/internal/application"
	"paperflow/internal/ports"
)

// DefaultTopK is how many hits find returns unless asked otherwise
const DefaultTopK = 5

// FindCommand ranks indexed papers against a free-text query
type FindCommand struct {
	indexer ports.Indexer
	Query   string
	TopK    int
}

// NewFindCommand creates a new FindCommand
func NewFindCommand(indexer ports.Indexer, query string, topK int) *FindCommand {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &FindCommand{indexer: indexer, Query: query, TopK: topK}
}

// Validate checks the search request
func (c *FindCommand) Validate() error {
	if err := application.ValidateRequired("query", c.Query); err != nil {
		return err
	}
	return requireIndexer(c.indexer)
}

// Execute runs the search against the remote index
func (c *FindCommand) Execute(ctx context.Context) ([]ports.SearchHit, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	hits, err := c.indexer.Search(ctx, c.Query, c.TopK)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return hits, nil
}

// SearchInPaperCommand pulls passages relevant to a query out of one paper
type SearchInPaperCommand struct {
	ledger      ports.Ledger
	indexer     ports.Indexer
	DocumentID  string
	Query       string
	MaxPassages int
}

// NewSearchInPaperCommand creates a new SearchInPaperCommand
func NewSearchInPaperCommand(ledger ports.Ledger, indexer ports.Indexer, documentID, query string, maxPassages int) *SearchInPaperCommand {
	if maxPassages <= 0 {
		maxPassages = 3
	}
	return &SearchInPaperCommand{
		ledger:      ledger,
		indexer:     indexer,
		DocumentID:  documentID,
		Query:       query,
		MaxPassages: maxPassages,
	}
}

// Validate checks the request
func (c *SearchInPaperCommand) Validate() error {
	if err := application.ValidateRequired("documentID", c.DocumentID); err != nil {
		return err
	}
	if err := application.ValidateRequired("query", c.Query); err != nil {
		return err
	}
	return requireIndexer(c.indexer)
}

// Execute runs the passage search
func (c *SearchInPaperCommand) Execute(ctx context.Context) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	id, err := ResolveID(ctx, c.ledger, c.DocumentID)
	if err != nil {
		return nil, err
	}
	passages, err := c.indexer.Passages(ctx, id, c.Query, c.MaxPassages)
	if err != nil {
		return nil, fmt.Errorf("passage search failed: %w", err)
	}
	return passages, nil
}

func requireIndexer(indexer ports.Indexer) error {
	if indexer == nil {
		return &application.ConfigurationError{
			Field:   "indexer.backend",
			Message: "search needs a remote indexer, none is configured",
		}
	}
	return nil
}
