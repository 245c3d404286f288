package models

import "time"

// Status is the terminal (or provisional) classification of one test outcome.
type Status string

// Test outcome status constants
const (
	StatusPass    Status = "PASS"    // Test completed successfully
	StatusFail    Status = "FAIL"    // Test ran and reported failure
	StatusCrash   Status = "CRASH"   // Test process died before reporting
	StatusTimeout Status = "TIMEOUT" // Test (or its worker) never finished
	StatusSkip    Status = "SKIP"    // Test was deliberately not run
	StatusNotRun  Status = "NOTRUN"  // Provisional: scheduled but not yet attempted
	StatusUnknown Status = "UNKNOWN" // No classification available
)

// Terminal reports whether the status is a final classification.
// NOTRUN and UNKNOWN are provisional and must be reconciled to TIMEOUT
// before a run's aggregate is returned to the caller.
func (s Status) Terminal() bool {
	switch s {
	case StatusPass, StatusFail, StatusCrash, StatusTimeout, StatusSkip:
		return true
	}
	return false
}

// Succeeded reports whether the status counts as "does not need a retry".
func (s Status) Succeeded() bool {
	return s == StatusPass || s == StatusSkip
}

// TestOutcome records the result of one attempt at one named test.
// Multiple outcomes may accumulate for the same name within a try
// (e.g. crash, requeue, then pass on another worker).
type TestOutcome struct {
	Name     string        // Result name as reported by the test
	Status   Status        // Classification of this attempt
	Duration time.Duration // Time taken by this attempt
	Log      string        // Captured output or diagnostic text
}

// TestItem is one schedulable unit of work: a single test, or a batch of
// tests addressed by a wildcard name with a trailing "*" (e.g. "Suite.*")
// whose members are matched by glob against individually reported result
// names.
type TestItem struct {
	Name    string        // Unique or wildcard name
	Timeout time.Duration // Per-item execution timeout (0 = plugin default)
	Payload any           // Plugin-private data carried through scheduling
}

// IsWildcard reports whether the item names a batch rather than a single test.
func (it TestItem) IsWildcard() bool {
	return len(it.Name) > 0 && it.Name[len(it.Name)-1] == '*'
}

// Worker identifies one physical execution unit (a device). A worker runs
// one item at a time; the registry owns the active set for the life of a run.
type Worker struct {
	ID string // Device serial or address
}
