// Package lablock serializes access to the device pool. Two runs sharing a
// lab would steal devices from each other mid-run, so the run command holds
// an exclusive file lock for the duration of the run.
package lablock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrBusy is returned when another process already holds the lab lock.
var ErrBusy = errors.New("lab is in use by another run")

// retryInterval is how often Acquire re-attempts a contended lock.
const retryInterval = 250 * time.Millisecond

// Lock is an exclusive, advisory lock on a lab's device pool, backed by a
// lock file shared by every devicelab process using that lab.
type Lock struct {
	flock *flock.Flock
	path  string
}

// New creates a lock for the given lock file path. The file is not touched
// until Acquire or TryAcquire.
func New(path string) *Lock {
	return &Lock{
		flock: flock.New(path),
		path:  path,
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// TryAcquire attempts to take the lock without waiting. Returns ErrBusy when
// another process holds it.
func (l *Lock) TryAcquire() error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	if !acquired {
		return fmt.Errorf("%s: %w", l.path, ErrBusy)
	}
	return nil
}

// Acquire takes the lock, waiting up to wait for a competing holder to
// release it. A wait of zero behaves like TryAcquire. Returns ErrBusy when
// the wait elapses, or the context error when ctx is cancelled first.
func (l *Lock) Acquire(ctx context.Context, wait time.Duration) error {
	if err := l.ensureDir(); err != nil {
		return err
	}

	deadline := time.Now().Add(wait)
	for {
		acquired, err := l.flock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to lock %s: %w", l.path, err)
		}
		if acquired {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s: %w", l.path, ErrBusy)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Release drops the lock. Safe to call when the lock was never acquired.
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, err)
	}
	return nil
}

func (l *Lock) ensureDir() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create lock directory %s: %w", dir, err)
	}
	return nil
}
