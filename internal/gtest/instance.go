// Package gtest is the googletest test-type plugin: it runs a gtest binary
// on lab devices, one filter expression per item, and parses the binary's
// output into per-test outcomes. Wildcard items ("Suite.*") run a whole
// suite in one invocation and report each member test individually.
package gtest

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/devicelab/internal/driver"
	"github.com/harrison/devicelab/internal/executor"
	"github.com/harrison/devicelab/internal/models"
)

// Instance implements executor.TestInstance for googletest binaries.
type Instance struct {
	executor.BaseInstance

	ctrl        *driver.Controller
	binary      string // on-device path of the test binary
	items       []models.TestItem
	itemTimeout time.Duration
	requeue     bool
}

// Config carries the plugin's construction parameters.
type Config struct {
	Binary         string             // On-device test binary path
	Items          []models.TestItem  // Items to run, usually from a manifest
	ItemTimeout    time.Duration      // Default per-item timeout
	RequeueOnCrash bool               // Hand crashed items to another device
	Controller     *driver.Controller // Device transport
}

// New creates a gtest Instance.
func New(cfg Config) (*Instance, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("gtest binary path is required")
	}
	if cfg.Controller == nil {
		return nil, fmt.Errorf("device controller is required")
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 5 * time.Minute
	}
	return &Instance{
		ctrl:        cfg.Controller,
		binary:      cfg.Binary,
		items:       cfg.Items,
		itemTimeout: cfg.ItemTimeout,
		requeue:     cfg.RequeueOnCrash,
	}, nil
}

// GetTests returns the configured item set.
func (in *Instance) GetTests(ctx context.Context) ([]models.TestItem, error) {
	if len(in.items) == 0 {
		return nil, fmt.Errorf("no test items configured")
	}
	return in.items, nil
}

// ShouldShard enables the shared dynamic queue: gtest items are
// independent, so work stealing across devices is always safe.
func (in *Instance) ShouldShard() bool { return true }

// RequeueOnCrash implements executor.RequeuePolicy.
func (in *Instance) RequeueOnCrash() bool { return in.requeue }

// RunOneItem runs the binary with a --gtest_filter for the item and parses
// the output. Transport failures surface as worker-fatal errors; a binary
// that dies without reporting any result is a recoverable item crash.
func (in *Instance) RunOneItem(ctx context.Context, worker models.Worker, item models.TestItem) ([]models.TestOutcome, error) {
	timeout := item.Timeout
	if timeout <= 0 {
		timeout = in.itemTimeout
	}
	// Run cancellation must not kill an item already dispatched to the
	// device: the item runs on to its own deadline while the worker loop
	// stops scheduling new ones. Only the per-item timeout reaches the
	// transport.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	result, err := in.ctrl.Run(runCtx, worker,
		in.binary, fmt.Sprintf("--gtest_filter=%s", item.Name))
	if err != nil {
		// The command never completed: device unreachable or the transport
		// itself timed out.
		return nil, executor.NewWorkerFatalError(worker.ID,
			fmt.Sprintf("running %s", item.Name), err)
	}

	outcomes := ParseOutput(result.Output)
	if len(outcomes) == 0 {
		if result.ExitCode != 0 {
			return nil, executor.NewItemError(item.Name,
				fmt.Sprintf("binary exited %d with no results", result.ExitCode), nil)
		}
		// Exit 0 with no result lines means the filter matched nothing.
		return nil, executor.NewItemError(item.Name, "filter matched no tests", nil)
	}
	return outcomes, nil
}

// IsHealthy implements executor.WorkerRecoverer via the device controller.
func (in *Instance) IsHealthy(ctx context.Context, worker models.Worker) bool {
	return in.ctrl.IsHealthy(ctx, worker)
}

// Recover implements executor.WorkerRecoverer via the device controller.
func (in *Instance) Recover(ctx context.Context, worker models.Worker) error {
	return in.ctrl.Recover(ctx, worker)
}
