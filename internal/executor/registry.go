package executor

import (
	"sync"

	"github.com/harrison/devicelab/internal/models"
)

// WorkerRegistry tracks the live worker set for one run. Workers are added
// once at run start and only ever removed, via Blacklist; removal is not
// reversible within a run. Reads return snapshot copies so iteration over
// "current workers" at try start stays stable even if blacklisting happens
// concurrently.
type WorkerRegistry struct {
	mu      sync.Mutex
	active  []models.Worker
	reasons map[string]string // worker ID -> blacklist reason
}

// NewWorkerRegistry creates a registry over the initially reachable workers.
func NewWorkerRegistry(workers []models.Worker) *WorkerRegistry {
	return &WorkerRegistry{
		active:  append([]models.Worker(nil), workers...),
		reasons: make(map[string]string),
	}
}

// ActiveWorkers returns a snapshot of the healthy worker set.
func (r *WorkerRegistry) ActiveWorkers() []models.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Worker(nil), r.active...)
}

// NumActive returns the size of the active set.
func (r *WorkerRegistry) NumActive() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Blacklist permanently removes a worker from the active set, recording the
// reason for diagnostics. Returns ErrNoWorkers when the removal empties the
// active set; the run cannot make progress and must abort. Blacklisting a
// worker that is already gone is a no-op.
func (r *WorkerRegistry) Blacklist(worker models.Worker, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, w := range r.active {
		if w.ID == worker.ID {
			r.active = append(r.active[:i], r.active[i+1:]...)
			r.reasons[worker.ID] = reason
			break
		}
	}
	if len(r.active) == 0 {
		return ErrNoWorkers
	}
	return nil
}

// BlacklistReasons returns a copy of the recorded blacklist reasons,
// keyed by worker ID.
func (r *WorkerRegistry) BlacklistReasons() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.reasons))
	for id, reason := range r.reasons {
		out[id] = reason
	}
	return out
}
