package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// Watcher observes the papers directory and turns settled file changes into events
type Watcher struct {
	dir             string
	debounce        time.Duration
	ledger          ports.Ledger
	processExisting bool
	logger          *slog.Logger

	mu          sync.Mutex
	lastEmitted map[string]string // path -> fingerprint
	fsw         *fsnotify.Watcher

	ready func() // called once the directory is being watched
}

// NewWatcher watches dir, emitting a path no sooner than debounce after its last write
func NewWatcher(dir string, debounce time.Duration, ledger ports.Ledger, processExisting bool) *Watcher {
	return &Watcher{
		dir:             dir,
		debounce:        debounce,
		ledger:          ledger,
		processExisting: processExisting,
		logger:          slog.Default(),
		lastEmitted:     make(map[string]string),
	}
}

// Scan lists the PDFs already in the directory and returns events for every
// file that still needs work: no record yet, a changed fingerprint, or a
// record stopped before a terminal stage.
func (w *Watcher) Scan(ctx context.Context) ([]domain.Event, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read papers directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && domain.IsPDF(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var events []domain.Event
	for _, name := range names {
		ev, rec, err := w.inspect(ctx, filepath.Join(w.dir, name))
		if err != nil {
			w.logger.Warn("Skipping unreadable paper.", "path", name, "error", err)
			continue
		}
		switch {
		case rec == nil && !w.processExisting:
			continue
		case rec != nil && rec.SourceFingerprint == ev.Fingerprint && rec.Stage.Terminal():
			continue
		}
		ev.Synthetic = true
		w.remember(ev)
		events = append(events, ev)
	}
	return events, nil
}

// Start registers the directory watch. Changes made after Start returns are
// queued for Run. The watch is released when ctx ends.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	context.AfterFunc(ctx, func() { fsw.Close() })
	w.fsw = fsw
	if w.ready != nil {
		w.ready()
	}
	return nil
}

// Run watches the directory until ctx ends, calling emit once per settled
// change. It starts the watch itself when Start was not called first.
func (w *Watcher) Run(ctx context.Context, emit func(domain.Event)) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	defer fsw.Close()

	deb := newDebouncer(w.debounce, func(path string) {
		w.settle(ctx, path, emit)
	})
	defer deb.Stop()

	w.logger.Info("Watching for papers.", "dir", w.dir, "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !domain.IsPDF(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				deb.Touch(event.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error.", "error", err)
		}
	}
}

// settle runs once the debounce window for path has passed quietly
func (w *Watcher) settle(ctx context.Context, path string, emit func(domain.Event)) {
	if ctx.Err() != nil {
		return
	}
	ev, rec, err := w.inspect(ctx, path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		w.logger.Warn("Skipping unreadable paper.", "path", path, "error", err)
		return
	}
	if rec != nil && rec.SourceFingerprint == ev.Fingerprint && rec.Stage.Terminal() {
		return
	}
	if !w.remember(ev) {
		return
	}
	w.logger.Debug("Paper settled.", "documentId", ev.ID, "path", path)
	emit(ev)
}

// remember records the emitted fingerprint, reporting false for a repeat
func (w *Watcher) remember(ev domain.Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastEmitted[ev.SourcePath] == ev.Fingerprint {
		return false
	}
	w.lastEmitted[ev.SourcePath] = ev.Fingerprint
	return true
}

// inspect fingerprints path and resolves its document ID against the ledger
func (w *Watcher) inspect(ctx context.Context, path string) (domain.Event, *domain.PaperRecord, error) {
	fp, err := domain.FingerprintFile(path)
	if err != nil {
		return domain.Event{}, nil, err
	}

	id := domain.NormalizeID(filepath.Base(path))
	rec, err := w.ledger.Get(ctx, id)
	if err != nil {
		return domain.Event{}, nil, err
	}
	if rec != nil && filepath.Clean(rec.SourcePath) != filepath.Clean(path) {
		// another file already owns this name
		id = domain.CollisionID(id, fp)
		if rec, err = w.ledger.Get(ctx, id); err != nil {
			return domain.Event{}, nil, err
		}
	}
	return domain.Event{ID: id, SourcePath: path, Fingerprint: fp}, rec, nil
}

// debouncer fires once per key after d has passed without another Touch
type debouncer struct {
	d    time.Duration
	fire func(key string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newDebouncer(d time.Duration, fire func(key string)) *debouncer {
	return &debouncer{d: d, fire: fire, timers: make(map[string]*time.Timer)}
}

// Touch restarts the window for key
func (d *debouncer) Touch(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d.d, func() {
		d.mu.Lock()
		if d.timers[key] != timer || d.stopped {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		d.fire(key)
	})
	d.timers[key] = timer
}

// Stop cancels every pending window
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
