package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"paperflow/internal/application"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// Processor runs one document through the pipeline
type Processor interface {
	Process(ctx context.Context, ev domain.Event) (Outcome, error)
}

// Source produces the events the dispatcher works on. Start begins observing
// changes, Scan lists the existing backlog, and Run delivers the changes seen
// since Start.
type Source interface {
	Start(ctx context.Context) error
	Scan(ctx context.Context) ([]domain.Event, error)
	Run(ctx context.Context, emit func(domain.Event)) error
}

// DispatcherConfig tunes the worker pool and its lifecycle
type DispatcherConfig struct {
	Workers       int
	SweepInterval time.Duration
	ShutdownGrace time.Duration
	// Once drains the existing backlog, including scheduled retries, then returns
	Once bool
}

// Dispatcher feeds watcher events to a bounded pool of workers. It never
// blocks on adapter calls itself.
type Dispatcher struct {
	proc   Processor
	source Source
	ledger ports.Ledger
	cfg    DispatcherConfig
	queue  *workQueue
	now    func() time.Time
	logger *slog.Logger
	abort  context.CancelCauseFunc
}

// NewDispatcher builds a dispatcher over proc, source, and ledger
func NewDispatcher(proc Processor, source Source, ledger ports.Ledger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Dispatcher{
		proc:   proc,
		source: source,
		ledger: ledger,
		cfg:    cfg,
		queue:  newWorkQueue(),
		now:    time.Now,
		logger: slog.Default(),
	}
}

// Enqueue adds ev to the work queue, collapsing duplicates by document ID
func (d *Dispatcher) Enqueue(ev domain.Event) {
	if !d.queue.Push(ev) {
		d.logger.Debug("Dropping event after shutdown.", "documentId", ev.ID)
	}
}

// Run processes until ctx ends or, in once mode, until the backlog drains.
// On shutdown in-flight jobs get ShutdownGrace to finish before being cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	// jobs outlive ctx by up to the grace period
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	d.abort = cancel
	if !d.cfg.Once {
		// watch before scanning so a file landing in between is not missed
		if err := d.source.Start(ctx); err != nil {
			return err
		}
	}

	events, err := d.source.Scan(ctx)
	if err != nil {
		return err
	}
	for _, ev := range events {
		d.Enqueue(ev)
	}
	if err := d.sweep(ctx); err != nil {
		return err
	}
	d.logger.Info("Dispatcher started.", "backlog", len(events), "workers", d.cfg.Workers, "once", d.cfg.Once)

	g, gctx := errgroup.WithContext(ctx)
	if !d.cfg.Once {
		g.Go(func() error {
			return d.source.Run(gctx, d.Enqueue)
		})
		g.Go(func() error {
			d.sweepLoop(gctx)
			return nil
		})
	}

	var workers errgroup.Group
	for range d.cfg.Workers {
		workers.Go(func() error {
			d.work(workCtx)
			return nil
		})
	}
	if d.cfg.Once && d.queue.Idle() {
		d.queue.Close()
	}

	workersDone := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
		case <-workersDone:
			return
		}
		d.logger.Info("Shutting down, waiting for in-flight papers.", "grace", d.cfg.ShutdownGrace)
		d.queue.Close()
		select {
		case <-time.After(d.cfg.ShutdownGrace):
			cancelWork()
		case <-workersDone:
		}
	}()

	_ = workers.Wait()
	close(workersDone)

	var cfgErr *application.ConfigurationError
	if cause := context.Cause(ctx); errors.As(cause, &cfgErr) {
		_ = g.Wait()
		return cause
	}
	if d.cfg.Once {
		return ctx.Err()
	}
	return g.Wait()
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		ev, ok := d.queue.Pop()
		if !ok {
			return
		}
		d.handle(ctx, ev)
		if d.queue.Finish() && d.cfg.Once {
			d.queue.Close()
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev domain.Event) {
	out, err := d.proc.Process(ctx, ev)
	var cfgErr *application.ConfigurationError
	if errors.As(err, &cfgErr) {
		d.logger.Error("Stopping, the pipeline is misconfigured.", "documentId", ev.ID, "error", err)
		d.abort(err)
		d.queue.Close()
		return
	}
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("Failed to process paper.", "documentId", ev.ID, "error", err)
		}
		return
	}
	if out.RetryAfter > 0 {
		ev.Synthetic = true
		d.queue.Schedule(ev, out.RetryAfter)
	}
}

func (d *Dispatcher) sweepLoop(ctx context.Context) {
	if d.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.sweep(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("Sweep failed.", "error", err)
			}
		}
	}
}

// sweep re-enqueues non-terminal records whose backoff has expired
func (d *Dispatcher) sweep(ctx context.Context) error {
	records, err := d.ledger.Scan(ctx, domain.NonTerminalStages()...)
	if err != nil {
		return err
	}

	now := d.now()
	for _, rec := range records {
		if d.queue.Waiting(rec.ID) {
			continue
		}
		if !rec.NextAttemptAt.IsZero() && now.Before(rec.NextAttemptAt) {
			d.queue.Schedule(d.eventFor(rec), rec.NextAttemptAt.Sub(now))
			continue
		}
		d.Enqueue(d.eventFor(rec))
	}
	return nil
}

func (d *Dispatcher) eventFor(rec domain.PaperRecord) domain.Event {
	return domain.Event{
		ID:          rec.ID,
		SourcePath:  rec.SourcePath,
		Fingerprint: rec.SourceFingerprint,
		Synthetic:   true,
	}
}
