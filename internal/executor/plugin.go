package executor

import (
	"context"

	"github.com/harrison/devicelab/internal/models"
)

// TestInstance is the contract a test-type plugin (gtest, monkey, perf, ...)
// implements for the orchestrator. The plugin supplies the concrete item
// list, decides whether dynamic sharding is used, and knows how to execute
// one item against one worker. The orchestrator drives this contract and
// never looks inside items beyond their names.
type TestInstance interface {
	// GetTests returns the full set of items to run.
	GetTests(ctx context.Context) ([]models.TestItem, error)

	// ShouldShard selects the assignment mode: true enables the shared
	// dynamic work queue (work stealing), false uses a static partition
	// computed once per try.
	ShouldShard() bool

	// CreateShards statically partitions items across n workers. Only
	// consulted when ShouldShard reports false. A nil return falls back
	// to round-robin partitioning.
	CreateShards(items []models.TestItem, n int) [][]models.TestItem

	// RunOneItem executes one item on one worker and returns the outcomes
	// it produced. A returned *WorkerFatalError marks the worker dead; any
	// other error is treated as a recoverable per-item failure.
	RunOneItem(ctx context.Context, worker models.Worker, item models.TestItem) ([]models.TestOutcome, error)

	// UniqueName derives the result-keying name for an item. Names ending
	// in "*" are wildcard batches matched by glob against reported result
	// names.
	UniqueName(item models.TestItem) string

	// ShouldRetry lets the plugin veto retrying an item whose most recent
	// outcome did not succeed.
	ShouldRetry(item models.TestItem, outcome models.TestOutcome) bool
}

// RequeuePolicy is optionally implemented by plugins that want a crashed
// item handed to a different worker via the shared queue instead of being
// marked failed outright. Only consulted in dynamic shard mode.
type RequeuePolicy interface {
	RequeueOnCrash() bool
}

// WorkerRecoverer is optionally implemented by plugins whose driver can
// health-check and recover workers between tries.
type WorkerRecoverer interface {
	IsHealthy(ctx context.Context, worker models.Worker) bool
	Recover(ctx context.Context, worker models.Worker) error
}

// BaseInstance provides the default plugin behaviors: identity naming,
// round-robin static sharding, and retry-everything-that-failed. Concrete
// plugins embed it and override what they need.
type BaseInstance struct{}

// ShouldShard defaults to static partitioning.
func (BaseInstance) ShouldShard() bool { return false }

// CreateShards defaults to nil, selecting the orchestrator's round-robin
// partition.
func (BaseInstance) CreateShards(items []models.TestItem, n int) [][]models.TestItem {
	return nil
}

// UniqueName defaults to the item's own name.
func (BaseInstance) UniqueName(item models.TestItem) string { return item.Name }

// ShouldRetry defaults to always retrying non-successful outcomes.
func (BaseInstance) ShouldRetry(item models.TestItem, outcome models.TestOutcome) bool {
	return true
}
