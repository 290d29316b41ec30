package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"paperflow/internal/domain"
	"paperflow/internal/ports"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const schemaVersion = "1"

// Dialect selects the SQL backend behind the ledger
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Ledger implements ports.Ledger on SQLite (local, default) or PostgreSQL (shared)
type Ledger struct {
	db      *sql.DB
	dialect Dialect
}

// Ensure Ledger implements ports.Ledger
var _ ports.Ledger = (*Ledger)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS papers (
		id TEXT PRIMARY KEY,
		source_path TEXT NOT NULL,
		source_fingerprint TEXT NOT NULL,
		stage TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		next_attempt_at BIGINT NOT NULL DEFAULT 0,
		index_ref TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_papers_stage ON papers(stage)`,
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Open connects to the ledger database and creates the schema if needed.
// For SQLite, dsn is a file path (or a full "file:" DSN).
func Open(ctx context.Context, dialect Dialect, dsn string) (*Ledger, error) {
	var (
		driver string
		source string
	)

	switch dialect {
	case SQLite:
		driver = "sqlite3"
		source = sqliteDSN(dsn)
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create ledger directory: %w", err)
			}
		}
	case Postgres:
		driver = "pgx"
		source = dsn
	default:
		return nil, fmt.Errorf("unknown ledger dialect %q", dialect)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == SQLite {
		// a single writer connection avoids SQLITE_BUSY between workers
		db.SetMaxOpenConns(1)
	}

	l := &Ledger{db: db, dialect: dialect}
	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}
	return l, nil
}

func sqliteDSN(dsn string) string {
	if strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return "file:" + dsn + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
}

func (l *Ledger) migrate(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return err
	}
	for _, stmt := range schema {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	_, err := l.db.ExecContext(ctx, l.rebind(`
		INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`), schemaVersion)
	return err
}

// Close closes the database connection
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

const selectColumns = `id, source_path, source_fingerprint, stage, attempts, last_error,
	next_attempt_at, index_ref, created_at, updated_at`

// Get retrieves a record by document ID, or nil when there is none
func (l *Ledger) Get(ctx context.Context, id string) (*domain.PaperRecord, error) {
	row := l.db.QueryRowContext(ctx, l.rebind(`SELECT `+selectColumns+` FROM papers WHERE id = ?`), id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	return rec, nil
}

// Upsert writes the whole record in a single statement inside a transaction
func (l *Ledger) Upsert(ctx context.Context, rec *domain.PaperRecord) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, l.rebind(`
		INSERT INTO papers (id, source_path, source_fingerprint, stage, attempts, last_error,
			next_attempt_at, index_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_path = excluded.source_path,
			source_fingerprint = excluded.source_fingerprint,
			stage = excluded.stage,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			next_attempt_at = excluded.next_attempt_at,
			index_ref = excluded.index_ref,
			updated_at = excluded.updated_at
	`),
		rec.ID,
		rec.SourcePath,
		rec.SourceFingerprint,
		rec.Stage.String(),
		rec.Attempts,
		rec.LastError,
		toMillis(rec.NextAttemptAt),
		rec.IndexRef,
		toMillis(rec.CreatedAt),
		toMillis(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
	}
	return tx.Commit()
}

// Scan returns records in the given stages ordered by ID, or all records
func (l *Ledger) Scan(ctx context.Context, stages ...domain.Stage) ([]domain.PaperRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM papers`
	args := make([]any, 0, len(stages))
	if len(stages) > 0 {
		placeholders := make([]string, len(stages))
		for i, st := range stages {
			placeholders[i] = "?"
			args = append(args, st.String())
		}
		query += ` WHERE stage IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY id`

	rows, err := l.db.QueryContext(ctx, l.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.PaperRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.PaperRecord, error) {
	var (
		rec                           domain.PaperRecord
		stage                         string
		nextAttempt, created, updated int64
	)
	err := s.Scan(
		&rec.ID,
		&rec.SourcePath,
		&rec.SourceFingerprint,
		&stage,
		&rec.Attempts,
		&rec.LastError,
		&nextAttempt,
		&rec.IndexRef,
		&created,
		&updated,
	)
	if err != nil {
		return nil, err
	}
	rec.Stage = domain.ParseStage(stage)
	rec.NextAttemptAt = fromMillis(nextAttempt)
	rec.CreatedAt = fromMillis(created)
	rec.UpdatedAt = fromMillis(updated)
	return &rec, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (l *Ledger) rebind(query string) string {
	if l.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
