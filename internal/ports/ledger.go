package ports

import (
	"context"

	"paperflow/internal/domain"
)

// Ledger is the durable per-document record of pipeline progress.
// Get returns (nil, nil) when no record exists. Upsert must be atomic:
// a reader never observes a partially written record.
type Ledger interface {
	Get(ctx context.Context, id string) (*domain.PaperRecord, error)
	Upsert(ctx context.Context, rec *domain.PaperRecord) error

	// Scan returns records in the given stages, or every record when none are given
	Scan(ctx context.Context, stages ...domain.Stage) ([]domain.PaperRecord, error)

	Close() error
}
