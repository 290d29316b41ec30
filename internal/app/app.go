package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"

	"paperflow/internal/adapters/claudecli"
	"paperflow/internal/adapters/converter"
	"paperflow/internal/adapters/filesystem"
	"paperflow/internal/adapters/gcp"
	"paperflow/internal/adapters/sqlstore"
	"paperflow/internal/adapters/web"
	"paperflow/internal/application"
	"paperflow/internal/config"
	"paperflow/internal/ports"
)

// Deps builds the adapters selected by the configuration on first use, so
// commands that only read the ledger never dial a cloud API.
type Deps struct {
	cfg *config.Config

	ledger  ports.Ledger
	store   *filesystem.Store
	vertex  map[string]*gcp.VertexClient
	gcs     *storage.Client
	closers []func() error
}

// New creates Deps for cfg. Call Close when done.
func New(cfg *config.Config) *Deps {
	return &Deps{cfg: cfg, vertex: make(map[string]*gcp.VertexClient)}
}

// Ledger opens the configured ledger backend
func (a *Deps) Ledger(ctx context.Context) (ports.Ledger, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}

	var (
		ledger ports.Ledger
		err    error
	)
	switch a.cfg.Ledger.Backend {
	case "postgres":
		ledger, err = sqlstore.Open(ctx, sqlstore.Postgres, a.cfg.Ledger.DSN)
	case "firestore":
		client, cerr := gcp.NewFirestoreClient(ctx, a.cfg.Google.Project)
		if cerr != nil {
			return nil, cerr
		}
		ledger = gcp.NewFirestoreLedger(client, a.cfg.Ledger.Collection)
	default:
		ledger, err = sqlstore.Open(ctx, sqlstore.SQLite, a.cfg.SQLiteDSN())
	}
	if err != nil {
		return nil, err
	}

	a.ledger = ledger
	a.closers = append(a.closers, ledger.Close)
	return ledger, nil
}

// Artifacts opens the on-disk artifact store
func (a *Deps) Artifacts() (*filesystem.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := filesystem.NewStore(a.cfg.Paths.Markdown, a.cfg.Paths.Summaries, a.cfg.Paths.State)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

// Converter returns the configured PDF to markdown engine. A marker backend
// whose binary is not installed is a configuration problem, reported before
// any paper is touched.
func (a *Deps) Converter() (ports.Converter, error) {
	c := a.cfg.Converter
	if c.Backend == "pdftext" {
		return converter.NewPDFText(), nil
	}
	m := converter.NewMarker(converter.MarkerOptions{
		UseLLM:          c.UseLLM,
		ForceOCR:        c.ForceOCR,
		RedoInlineMath:  c.RedoInlineMath,
		BatchMultiplier: c.BatchMultiplier,
		MaxPages:        c.MaxPages,
		Languages:       c.Languages,
		Timeout:         c.Timeout,
		Binary:          c.Binary,
		GoogleAPIKey:    a.cfg.GoogleAPIKey,
	})
	if !m.IsAvailable() {
		return nil, &application.ConfigurationError{
			Field:   "converter.binary",
			Message: fmt.Sprintf("%s not found on PATH; install marker or set converter.backend: pdftext", c.Binary),
		}
	}
	return m, nil
}

// Summarizer returns the language model backend, or nil when disabled
func (a *Deps) Summarizer(ctx context.Context) (ports.Summarizer, error) {
	s := a.cfg.Summarizer
	switch s.Backend {
	case "none":
		return nil, nil
	case "gemini":
		model := s.Model
		if !strings.HasPrefix(model, "gemini") {
			model = a.cfg.Indexer.Model
		}
		client, err := a.vertexClient(ctx, model)
		if err != nil {
			return nil, err
		}
		return gcp.NewGeminiSummarizer(client, s.MaxChars), nil
	default:
		assistant := claudecli.NewAssistant(
			claudecli.WithModel(s.Model),
			claudecli.WithMaxChars(s.MaxChars),
			claudecli.WithBinary(s.Binary),
		)
		if !assistant.IsAvailable() {
			return nil, &application.ConfigurationError{
				Field:   "summarizer.binary",
				Message: fmt.Sprintf("%s not found on PATH; install the claude CLI or set summarizer.backend", s.Binary),
			}
		}
		return assistant, nil
	}
}

// Indexer returns the remote semantic index, or nil when disabled
func (a *Deps) Indexer(ctx context.Context) (ports.Indexer, error) {
	if a.cfg.Indexer.Backend != "gemini" {
		return nil, nil
	}
	client, err := a.vertexClient(ctx, a.cfg.Indexer.Model)
	if err != nil {
		return nil, err
	}
	if a.gcs == nil {
		gcs, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		a.gcs = gcs
		a.closers = append(a.closers, gcs.Close)
	}
	return gcp.NewSemanticIndex(a.gcs, client, a.cfg.Indexer.Bucket, a.cfg.Indexer.Prefix, a.cfg.Summarizer.MaxChars), nil
}

// Web returns the client for public paper APIs (arXiv, Unpaywall,
// Semantic Scholar, Brave)
func (a *Deps) Web() *web.Client {
	return web.NewClient(a.cfg.Web.Timeout,
		web.WithEmail(a.cfg.Web.Email),
		web.WithScholarKey(a.cfg.ScholarAPIKey),
		web.WithBraveKey(a.cfg.BraveAPIKey),
	)
}

func (a *Deps) vertexClient(ctx context.Context, model string) (*gcp.VertexClient, error) {
	if c, ok := a.vertex[model]; ok {
		return c, nil
	}
	c, err := gcp.NewVertexClient(ctx, a.cfg.Google.Project, a.cfg.Google.Region, model)
	if err != nil {
		return nil, err
	}
	a.vertex[model] = c
	a.closers = append(a.closers, c.Close)
	return c, nil
}

// Close releases every client opened so far
func (a *Deps) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
