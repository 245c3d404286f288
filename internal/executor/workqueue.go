package executor

import (
	"sync"

	"github.com/harrison/devicelab/internal/models"
)

// WorkQueue is a thread-safe pool of pending items shared by all workers in
// dynamic shard mode. Workers drain it cooperatively, so a fast worker that
// finishes early helps with a slow worker's backlog. Items can be requeued
// for another worker after a recoverable failure.
//
// Conservation invariant: items taken == items completed + items requeued
// and still pending. No item is silently dropped; the try is complete only
// when every item has been marked done.
type WorkQueue struct {
	mu          sync.Mutex
	pending     []models.TestItem
	outstanding int            // items not yet marked done
	taken       int            // total TakeNext successes, for diagnostics
	requeued    int            // total accepted Requeue calls, for diagnostics
	requeues    map[string]int // per-item accepted Requeue counts
	done        chan struct{}  // closed when outstanding reaches zero
}

// maxRequeues bounds how many times one item may be handed back for another
// worker within a try. An item that crashes deterministically would
// otherwise circulate between workers forever and the try would never
// complete; past the bound the failure is terminal for this try.
const maxRequeues = 3

// NewWorkQueue creates a queue holding the given items. Every item counts
// as outstanding until MarkItemDone is called for it.
func NewWorkQueue(items []models.TestItem) *WorkQueue {
	q := &WorkQueue{
		pending:     append([]models.TestItem(nil), items...),
		outstanding: len(items),
		requeues:    make(map[string]int),
		done:        make(chan struct{}),
	}
	if q.outstanding == 0 {
		close(q.done)
	}
	return q
}

// TakeNext pops the next pending item. Returns ok=false when the queue is
// drained; the item may still be requeued later, so a drained queue is not
// necessarily a completed one.
func (q *WorkQueue) TakeNext() (models.TestItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return models.TestItem{}, false
	}
	item := q.pending[0]
	q.pending = q.pending[1:]
	q.taken++
	return item, true
}

// Requeue pushes an item back for another worker to attempt, if its requeue
// budget allows. Returns false once the item has been requeued maxRequeues
// times; the caller must then settle the item itself. An accepted requeue
// leaves the outstanding count unchanged: the item was never marked done.
func (q *WorkQueue) Requeue(item models.TestItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.requeues[item.Name] >= maxRequeues {
		return false
	}
	q.requeues[item.Name]++
	q.pending = append(q.pending, item)
	q.requeued++
	return true
}

// MarkItemDone records that one taken item reached a terminal state. When
// every item is done the queue's Done channel is closed, letting the
// orchestrator detect try completion even though individual workers may
// have stopped early.
func (q *WorkQueue) MarkItemDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.outstanding == 0 {
		return
	}
	q.outstanding--
	if q.outstanding == 0 {
		close(q.done)
	}
}

// Done returns a channel closed once every item has been marked done. An
// idle worker watches it while other workers still hold items that may yet
// be requeued.
func (q *WorkQueue) Done() <-chan struct{} {
	return q.done
}

// Outstanding returns how many items have not yet been marked done.
func (q *WorkQueue) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}

// Pending returns how many items are currently queued for pickup.
func (q *WorkQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns the taken and requeued counters.
func (q *WorkQueue) Stats() (taken, requeued int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.taken, q.requeued
}
