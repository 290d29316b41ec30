package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"paperflow/internal/domain"
)

func TestDebouncer_CollapsesBursts(t *testing.T) {
	var mu sync.Mutex
	fired := map[string]int{}
	d := newDebouncer(30*time.Millisecond, func(key string) {
		mu.Lock()
		fired[key]++
		mu.Unlock()
	})
	defer d.Stop()

	for range 10 {
		d.Touch("a.pdf")
		time.Sleep(5 * time.Millisecond)
	}
	d.Touch("b.pdf")
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired["a.pdf"] != 1 {
		t.Errorf("expected a.pdf to fire once, got %d", fired["a.pdf"])
	}
	if fired["b.pdf"] != 1 {
		t.Errorf("expected b.pdf to fire once, got %d", fired["b.pdf"])
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var fired atomic.Int32
	d := newDebouncer(20*time.Millisecond, func(string) { fired.Add(1) })
	d.Touch("a.pdf")
	d.Stop()
	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("expected no fire after Stop")
	}
}

func writePaper(t *testing.T, dir, name, content string) (string, string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	fp, err := domain.FingerprintFile(path)
	if err != nil {
		t.Fatalf("failed to fingerprint %s: %v", name, err)
	}
	return path, fp
}

func TestWatcherScan(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ledger := newMemLedger()

	writePaper(t, dir, "fresh.pdf", "fresh")
	indexedPath, indexedFP := writePaper(t, dir, "indexed.pdf", "indexed")
	failedPath, failedFP := writePaper(t, dir, "failed.pdf", "failed")
	changedPath, _ := writePaper(t, dir, "changed.pdf", "changed v2")
	stuckPath, stuckFP := writePaper(t, dir, "stuck.pdf", "stuck")
	writePaper(t, dir, "notes.txt", "not a paper")

	seed := func(id, path, fp string, stage domain.Stage) {
		rec := domain.NewPaperRecord(id, path, fp, time.Now())
		rec.Stage = stage
		_ = ledger.Upsert(ctx, rec)
	}
	seed("indexed", indexedPath, indexedFP, domain.StageIndexed)
	seed("failed", failedPath, failedFP, domain.StageFailed)
	seed("changed", changedPath, "old-fingerprint", domain.StageIndexed)
	seed("stuck", stuckPath, stuckFP, domain.StageSummarizing)

	tests := []struct {
		name            string
		processExisting bool
		want            []string
	}{
		{
			name:            "process existing",
			processExisting: true,
			want:            []string{"changed", "fresh", "stuck"},
		},
		{
			name:            "known papers only",
			processExisting: false,
			want:            []string{"changed", "stuck"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWatcher(dir, time.Second, ledger, tt.processExisting)
			events, err := w.Scan(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(events) != len(tt.want) {
				t.Fatalf("expected %v, got %+v", tt.want, events)
			}
			for i, ev := range events {
				if ev.ID != tt.want[i] {
					t.Errorf("event %d: expected %s, got %s", i, tt.want[i], ev.ID)
				}
				if !ev.Synthetic {
					t.Errorf("expected scan event %s to be synthetic", ev.ID)
				}
			}
		})
	}
}

func TestWatcherScan_NameCollision(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ledger := newMemLedger()

	owner, ownerFP := writePaper(t, dir, "attention.pdf", "original")
	_, otherFP := writePaper(t, dir, "Attention!.pdf", "different paper")
	_ = ledger.Upsert(ctx, &domain.PaperRecord{
		ID:                "attention",
		SourcePath:        owner,
		SourceFingerprint: ownerFP,
		Stage:             domain.StageIndexed,
	})

	w := NewWatcher(dir, time.Second, ledger, true)
	events, err := w.Scan(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %+v", events)
	}
	if want := domain.CollisionID("attention", otherFP); events[0].ID != want {
		t.Errorf("expected collision id %s, got %s", want, events[0].ID)
	}
}

func TestWatcherRun_EmitsOncePerSettledWrite(t *testing.T) {
	dir := t.TempDir()
	ledger := newMemLedger()
	w := NewWatcher(dir, 100*time.Millisecond, ledger, true)

	ready := make(chan struct{})
	w.ready = func() { close(ready) }

	var mu sync.Mutex
	var events []domain.Event
	emit := func(ev domain.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.Run(ctx, emit) }()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never started")
	}

	path := filepath.Join(dir, "vaswani2017.pdf")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create: %v", err)
	}
	for range 5 {
		_, _ = f.WriteString("%PDF chunk\n")
		time.Sleep(10 * time.Millisecond)
	}
	f.Close()
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644)

	time.Sleep(500 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %+v", events)
	}
	if events[0].ID != "vaswani2017" || events[0].SourcePath != path {
		t.Errorf("unexpected event %+v", events[0])
	}
	if events[0].Synthetic {
		t.Error("expected a live event")
	}
}
