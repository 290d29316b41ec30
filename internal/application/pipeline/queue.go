package pipeline

import (
	"sync"
	"time"

	"paperflow/internal/domain"
)

// workQueue is a FIFO of documents keyed by ID. Pushing an ID that is
// already waiting replaces its event in place, so the latest fingerprint wins.
// It also owns the backoff timers so it can tell when all work has drained.
type workQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	order   []string
	pending map[string]domain.Event
	timers  map[string]*time.Timer
	active  int
	closed  bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{
		pending: make(map[string]domain.Event),
		timers:  make(map[string]*time.Timer),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues ev, reporting false once the queue is closed
func (q *workQueue) Push(ev domain.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushLocked(ev)
}

func (q *workQueue) pushLocked(ev domain.Event) bool {
	if q.closed {
		return false
	}
	if _, ok := q.pending[ev.ID]; !ok {
		q.order = append(q.order, ev.ID)
	}
	q.pending[ev.ID] = ev
	q.cond.Signal()
	return true
}

// Pop blocks for the next event. The caller must call Finish when done with it.
func (q *workQueue) Pop() (domain.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.order) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return domain.Event{}, false
	}

	id := q.order[0]
	q.order = q.order[1:]
	ev := q.pending[id]
	delete(q.pending, id)
	q.active++
	return ev, true
}

// Finish marks a popped event as handled and reports whether all work is drained
func (q *workQueue) Finish() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.active--
	return q.idleLocked()
}

// Schedule pushes ev again after delay, replacing any timer already set for it
func (q *workQueue) Schedule(ev domain.Event, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if t, ok := q.timers[ev.ID]; ok {
		t.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.timers[ev.ID] != timer {
			return
		}
		delete(q.timers, ev.ID)
		q.pushLocked(ev)
	})
	q.timers[ev.ID] = timer
}

// Waiting reports whether id is queued or has a retry scheduled
func (q *workQueue) Waiting(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, queued := q.pending[id]
	_, scheduled := q.timers[id]
	return queued || scheduled
}

// Idle reports whether nothing is queued, running, or scheduled
func (q *workQueue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.idleLocked()
}

func (q *workQueue) idleLocked() bool {
	return len(q.order) == 0 && q.active == 0 && len(q.timers) == 0
}

// Close stops accepting work, drops scheduled retries, and wakes all waiters
func (q *workQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.cond.Broadcast()
}
