package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"paperflow/internal/application"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// Timeouts bound each adapter call
type Timeouts struct {
	Convert   time.Duration
	Summarize time.Duration
	Index     time.Duration
}

// Orchestrator drives one document at a time through
// convert -> summarize -> index, persisting every transition.
type Orchestrator struct {
	ledger     ports.Ledger
	artifacts  ports.ArtifactStore
	converter  ports.Converter
	summarizer ports.Summarizer // nil: summaries disabled
	indexer    ports.Indexer    // nil: remote indexing disabled

	policy   RetryPolicy
	timeouts Timeouts
	locks    *keyedMutex
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures the Orchestrator
type Option func(*Orchestrator)

// WithRetryPolicy replaces the default retry policy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithTimeouts sets per-stage adapter timeouts
func WithTimeouts(t Timeouts) Option {
	return func(o *Orchestrator) {
		o.timeouts = t
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithLogger sets the base logger for runs
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// NewOrchestrator wires the stage adapters to the ledger and artifact store.
// summarizer and indexer may be nil to skip those stages' work.
func NewOrchestrator(ledger ports.Ledger, artifacts ports.ArtifactStore, converter ports.Converter, summarizer ports.Summarizer, indexer ports.Indexer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:     ledger,
		artifacts:  artifacts,
		converter:  converter,
		summarizer: summarizer,
		indexer:    indexer,
		policy:     DefaultRetryPolicy(),
		timeouts: Timeouts{
			Convert:   5 * time.Minute,
			Summarize: 3 * time.Minute,
			Index:     2 * time.Minute,
		},
		locks:  newKeyedMutex(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Outcome is where a run left the document
type Outcome struct {
	Stage domain.Stage
	// RetryAfter is non-zero when a transient failure scheduled another attempt
	RetryAfter time.Duration
}

// stage describes one adapter step of the sequence
type stage struct {
	name    string
	running domain.Stage
	done    domain.Stage
	run     func(ctx context.Context, rec *domain.PaperRecord) error
}

func (o *Orchestrator) stages() []stage {
	return []stage{
		{"convert", domain.StageConverting, domain.StageConverted, o.convert},
		{"summarize", domain.StageSummarizing, domain.StageSummarized, o.summarize},
		{"index", domain.StageIndexing, domain.StageIndexed, o.index},
	}
}

// Process runs the document named by ev from its current stage as far as it
// can go. Adapter failures end up in the ledger, not in the returned error;
// an error means the ledger or artifact store itself failed, or ctx ended.
func (o *Orchestrator) Process(ctx context.Context, ev domain.Event) (Outcome, error) {
	unlock := o.locks.Lock(ev.ID)
	defer unlock()

	log := o.logger.With("documentId", ev.ID, "runId", uuid.NewString())

	rec, err := o.resolve(ctx, log, ev)
	if err != nil {
		return Outcome{}, err
	}
	if rec.Stage.Terminal() {
		return Outcome{Stage: rec.Stage}, nil
	}

	now := o.now()
	if !rec.NextAttemptAt.IsZero() && now.Before(rec.NextAttemptAt) {
		return Outcome{Stage: rec.Stage, RetryAfter: rec.NextAttemptAt.Sub(now)}, nil
	}

	log.Info("Processing paper.", "stage", rec.Stage.String())
	for _, st := range o.stages() {
		if rec.Stage.AtLeast(st.done) {
			continue
		}
		out, stop, err := o.runStage(ctx, log, rec, st)
		if err != nil || stop {
			return out, err
		}
	}

	log.Info("Paper indexed.", "indexRef", rec.IndexRef)
	return Outcome{Stage: rec.Stage}, nil
}

// resolve loads or creates the record and applies fingerprint invalidation
func (o *Orchestrator) resolve(ctx context.Context, log *slog.Logger, ev domain.Event) (*domain.PaperRecord, error) {
	rec, err := o.ledger.Get(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	now := o.now()

	switch {
	case rec == nil:
		rec = domain.NewPaperRecord(ev.ID, ev.SourcePath, ev.Fingerprint, now)
		log.Info("New paper detected.", "source", ev.SourcePath)

	case ev.Fingerprint != "" && ev.Fingerprint != rec.SourceFingerprint:
		log.Info("Source changed, starting over.", "previousStage", rec.Stage.String())
		rec.Reset(ev.SourcePath, ev.Fingerprint, now)
		if err := o.artifacts.Clear(rec.ID, domain.ArtifactText, domain.ArtifactSummary); err != nil {
			return nil, fmt.Errorf("failed to clear stale artifacts: %w", err)
		}

	case !rec.Stage.Terminal():
		missing, err := o.missingArtifacts(rec)
		if err != nil {
			return nil, err
		}
		if missing {
			// idempotent stages make replaying from Detected cheap
			log.Warn("Artifacts missing for recorded stage, replaying.", "stage", rec.Stage.String())
			rec.Reset(rec.SourcePath, rec.SourceFingerprint, now)
		} else {
			return rec, nil
		}

	default:
		return rec, nil
	}

	if err := o.ledger.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist record: %w", err)
	}
	return rec, nil
}

// missingArtifacts reports whether a stage's recorded outputs are gone or stale
func (o *Orchestrator) missingArtifacts(rec *domain.PaperRecord) (bool, error) {
	required := map[domain.ArtifactKind]bool{
		domain.ArtifactText:    rec.Stage.AtLeast(domain.StageConverted),
		domain.ArtifactSummary: o.summarizer != nil && rec.Stage.AtLeast(domain.StageSummarized),
	}
	for kind, need := range required {
		if !need {
			continue
		}
		art, err := o.artifacts.Current(rec.ID, kind, rec.SourceFingerprint)
		if err != nil {
			return false, fmt.Errorf("failed to check %s artifact: %w", kind, err)
		}
		if art == nil {
			return true, nil
		}
	}
	return false, nil
}

// runStage executes one step. stop is true when the run must end here.
func (o *Orchestrator) runStage(ctx context.Context, log *slog.Logger, rec *domain.PaperRecord, st stage) (Outcome, bool, error) {
	if rec.Stage != st.running {
		if err := rec.Advance(st.running, o.now()); err != nil {
			return Outcome{}, true, err
		}
		if err := o.ledger.Upsert(ctx, rec); err != nil {
			return Outcome{}, true, fmt.Errorf("failed to persist record: %w", err)
		}
	}

	started := time.Now()
	err := st.run(ctx, rec)
	if err == nil {
		if err := rec.Advance(st.done, o.now()); err != nil {
			return Outcome{}, true, err
		}
		if err := o.ledger.Upsert(ctx, rec); err != nil {
			return Outcome{}, true, fmt.Errorf("failed to persist record: %w", err)
		}
		log.Info("Stage complete.", "stage", st.done.String(), "duration", time.Since(started).Round(time.Millisecond))
		return Outcome{Stage: rec.Stage}, false, nil
	}

	if isCancellation(ctx, err) {
		// leave the record at its last persisted stage; restart resumes here
		log.Warn("Run interrupted.", "stage", rec.Stage.String())
		return Outcome{Stage: rec.Stage}, true, ctx.Err()
	}

	var cfgErr *application.ConfigurationError
	if errors.As(err, &cfgErr) {
		// not the paper's fault: keep the record where it is and stop the run
		log.Error("Stage cannot run, check the configuration.", "stage", st.name, "error", err)
		return Outcome{Stage: rec.Stage}, true, err
	}

	return o.fail(ctx, log, rec, st, err)
}

func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, rec *domain.PaperRecord, st stage, cause error) (Outcome, bool, error) {
	now := o.now()
	kind := o.policy.Classify(cause)
	rec.Attempts++

	if o.policy.ShouldRetry(rec.Attempts, kind) {
		backoff := o.policy.Backoff(rec.Attempts)
		rec.LastError = cause.Error()
		rec.NextAttemptAt = now.Add(backoff)
		rec.UpdatedAt = now
		if err := o.ledger.Upsert(ctx, rec); err != nil {
			return Outcome{}, true, fmt.Errorf("failed to persist record: %w", err)
		}
		log.Warn("Stage failed, will retry.",
			"stage", st.name,
			"attempt", rec.Attempts,
			"maxAttempts", o.policy.MaxAttempts,
			"backoff", backoff,
			"error", cause)
		return Outcome{Stage: rec.Stage, RetryAfter: backoff}, true, nil
	}

	rec.LastError = o.policy.FailureMessage(kind, rec.Attempts, cause)
	if err := rec.Advance(domain.StageFailed, now); err != nil {
		return Outcome{}, true, err
	}
	if err := o.ledger.Upsert(ctx, rec); err != nil {
		return Outcome{}, true, fmt.Errorf("failed to persist record: %w", err)
	}
	log.Error("Paper failed.", "stage", st.name, "attempts", rec.Attempts, "kind", kind.String(), "error", cause)
	return Outcome{Stage: rec.Stage}, true, nil
}

func (o *Orchestrator) convert(ctx context.Context, rec *domain.PaperRecord) error {
	art, err := o.artifacts.Current(rec.ID, domain.ArtifactText, rec.SourceFingerprint)
	if err != nil {
		return err
	}
	if art != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeouts.Convert)
	defer cancel()

	text, err := o.converter.Convert(ctx, ports.ConvertRequest{
		DocumentID: rec.ID,
		SourcePath: rec.SourcePath,
		AssetDir:   o.artifacts.AssetDir(rec.ID),
		TextPath:   o.artifacts.Path(rec.ID, domain.ArtifactText),
	})
	if err != nil {
		return err
	}
	_, err = o.artifacts.Put(rec.ID, domain.ArtifactText, rec.SourceFingerprint, []byte(text))
	return err
}

func (o *Orchestrator) summarize(ctx context.Context, rec *domain.PaperRecord) error {
	if o.summarizer == nil {
		return nil
	}
	art, err := o.artifacts.Current(rec.ID, domain.ArtifactSummary, rec.SourceFingerprint)
	if err != nil {
		return err
	}
	if art != nil {
		return nil
	}

	text, err := o.artifacts.Read(rec.ID, domain.ArtifactText)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeouts.Summarize)
	defer cancel()

	summary, err := o.summarizer.Summarize(ctx, rec.ID, string(text))
	if err != nil {
		return err
	}
	_, err = o.artifacts.Put(rec.ID, domain.ArtifactSummary, rec.SourceFingerprint, []byte(summary))
	return err
}

func (o *Orchestrator) index(ctx context.Context, rec *domain.PaperRecord) error {
	if o.indexer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeouts.Index)
	defer cancel()

	has, err := o.indexer.Has(ctx, rec.ID, rec.SourceFingerprint)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	text, err := o.artifacts.Read(rec.ID, domain.ArtifactText)
	if err != nil {
		return err
	}
	var summary []byte
	if o.summarizer != nil {
		summary, err = o.artifacts.Read(rec.ID, domain.ArtifactSummary)
		if err != nil {
			return err
		}
	}

	ref, err := o.indexer.Index(ctx, ports.IndexDocument{
		DocumentID:  rec.ID,
		Fingerprint: rec.SourceFingerprint,
		Text:        string(text),
		Summary:     string(summary),
	})
	if err != nil {
		return err
	}
	rec.IndexRef = ref
	return nil
}
