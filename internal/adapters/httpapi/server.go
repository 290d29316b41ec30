package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"paperflow/internal/application"
	"paperflow/internal/application/commands"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// Server exposes the library read-only over JSON
type Server struct {
	ledger    ports.Ledger
	artifacts ports.ArtifactStore
	verifier  ports.Summarizer
	indexer   ports.Indexer
	logger    *slog.Logger
}

// NewServer creates a Server. verifier and indexer may be nil.
func NewServer(ledger ports.Ledger, artifacts ports.ArtifactStore, verifier ports.Summarizer, indexer ports.Indexer) *Server {
	return &Server{
		ledger:    ledger,
		artifacts: artifacts,
		verifier:  verifier,
		indexer:   indexer,
		logger:    slog.Default(),
	}
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "paperflow"})
	})

	r.Get("/papers", s.listPapers)
	r.Route("/papers/{id}", func(r chi.Router) {
		r.Get("/", s.getPaper)
		r.Get("/text", s.getText)
		r.Get("/summary", s.getSummary)
		r.Post("/verify", s.verify)
	})
	r.Get("/search", s.search)
	return r
}

type paperJSON struct {
	ID         string    `json:"id"`
	Stage      string    `json:"stage"`
	Attempts   int       `json:"attempts,omitempty"`
	LastError  string    `json:"lastError,omitempty"`
	IndexRef   string    `json:"indexRef,omitempty"`
	HasSummary bool      `json:"hasSummary"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toPaperJSON(e commands.PaperEntry) paperJSON {
	return paperJSON{
		ID:         e.Record.ID,
		Stage:      e.Record.Stage.String(),
		Attempts:   e.Record.Attempts,
		LastError:  e.Record.LastError,
		IndexRef:   e.Record.IndexRef,
		HasSummary: e.HasSummary,
		UpdatedAt:  e.Record.UpdatedAt,
	}
}

// listPapers returns indexed papers, or every record with ?all=true
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	var (
		entries []commands.PaperEntry
		err     error
	)
	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); all {
		entries, err = commands.NewStatusCommand(s.ledger, s.artifacts).Execute(r.Context())
	} else {
		entries, err = commands.NewListPapersCommand(s.ledger, s.artifacts).Execute(r.Context())
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]paperJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, toPaperJSON(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	id, err := commands.ResolveID(r.Context(), s.ledger, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.ledger.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	summary, err := s.artifacts.Current(id, domain.ArtifactSummary, rec.SourceFingerprint)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaperJSON(commands.PaperEntry{Record: *rec, HasSummary: summary != nil}))
}

type documentJSON struct {
	ID      string `json:"id"`
	Section string `json:"section,omitempty"`
	Content string `json:"content"`
}

func (s *Server) getText(w http.ResponseWriter, r *http.Request) {
	section := r.URL.Query().Get("section")
	res, err := commands.NewReadPaperCommand(s.ledger, s.artifacts, chi.URLParam(r, "id"), section).Execute(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentJSON{ID: res.DocumentID, Section: section, Content: res.Content})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	res, err := commands.NewSummaryCommand(s.ledger, s.artifacts, chi.URLParam(r, "id")).Execute(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentJSON{ID: res.DocumentID, Content: res.Content})
}

type hitJSON struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet,omitempty"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	top, _ := strconv.Atoi(r.URL.Query().Get("top"))
	hits, err := commands.NewFindCommand(s.indexer, r.URL.Query().Get("q"), top).Execute(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]hitJSON, 0, len(hits))
	for _, h := range hits {
		out = append(out, hitJSON{ID: h.DocumentID, Score: h.Score, Snippet: h.Snippet})
	}
	writeJSON(w, http.StatusOK, out)
}

type verifyRequest struct {
	Claim string `json:"claim"`
}

type verifyJSON struct {
	ID         string  `json:"id"`
	Claim      string  `json:"claim"`
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Quote      string  `json:"quote,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid JSON body: " + err.Error()})
		return
	}

	res, err := commands.NewVerifyCommand(s.ledger, s.artifacts, s.verifier, chi.URLParam(r, "id"), req.Claim).Execute(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	v := res.Verification
	writeJSON(w, http.StatusOK, verifyJSON{
		ID:         res.DocumentID,
		Claim:      res.Claim,
		Verdict:    v.Verdict.String(),
		Confidence: v.Confidence,
		Quote:      v.Quote,
		Notes:      v.Notes,
	})
}

type errorJSON struct {
	Error      string   `json:"error"`
	Candidates []string `json:"candidates,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		notFound *application.NotFoundError
		invalid  *application.ValidationError
		cfgErr   *application.ConfigurationError
	)
	body := errorJSON{Error: err.Error()}

	switch {
	case errors.As(err, &notFound):
		body.Candidates = notFound.Candidates
		writeJSON(w, http.StatusNotFound, body)
	case errors.Is(err, application.ErrNotFound):
		writeJSON(w, http.StatusNotFound, body)
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, body)
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusNotImplemented, body)
	default:
		s.logger.Error("Request failed.", "error", err)
		writeJSON(w, http.StatusInternalServerError, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
