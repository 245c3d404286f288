package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoWorkers is returned when the active worker set becomes empty.
// There is no way to make progress with zero workers, so the run aborts.
var ErrNoWorkers = errors.New("no active workers remain")

// ItemError represents a recoverable per-item failure: the test process
// crashed or misbehaved, but the worker itself is still reachable. The
// worker loop records a terminal outcome for the item and moves on.
type ItemError struct {
	ItemName  string    // Name of the item that failed
	Message   string    // Human-readable error message
	Err       error     // Underlying error (optional)
	Timestamp time.Time // When the error occurred
}

// NewItemError creates a new ItemError with the current timestamp.
func NewItemError(name, msg string, err error) *ItemError {
	return &ItemError{
		ItemName:  name,
		Message:   msg,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface for ItemError.
func (e *ItemError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("item %s: %s", e.ItemName, e.Message))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *ItemError) Unwrap() error {
	return e.Err
}

// WorkerFatalError represents a failure of the worker itself: the device is
// unreachable or a command timed out at the transport level. The worker loop
// marks every unattempted item as TIMEOUT and blacklists the worker.
type WorkerFatalError struct {
	WorkerID  string    // Device that failed
	Message   string    // Human-readable error message
	Err       error     // Underlying error (optional)
	Timestamp time.Time // When the error occurred
}

// NewWorkerFatalError creates a new WorkerFatalError with the current timestamp.
func NewWorkerFatalError(workerID, msg string, err error) *WorkerFatalError {
	return &WorkerFatalError{
		WorkerID:  workerID,
		Message:   msg,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface for WorkerFatalError.
func (e *WorkerFatalError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("worker %s: %s", e.WorkerID, e.Message))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *WorkerFatalError) Unwrap() error {
	return e.Err
}

// IsWorkerFatal checks if the error is or wraps a WorkerFatalError.
func IsWorkerFatal(err error) bool {
	if err == nil {
		return false
	}
	var we *WorkerFatalError
	return errors.As(err, &we)
}

// IsItemError checks if the error is or wraps an ItemError.
func IsItemError(err error) bool {
	if err == nil {
		return false
	}
	var ie *ItemError
	return errors.As(err, &ie)
}
