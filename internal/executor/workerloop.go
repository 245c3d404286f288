package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/devicelab/internal/models"
)

// workerLoop runs items sequentially on one worker until its assignment is
// exhausted, cancellation is observed, or the worker is deemed unhealthy.
// Exactly one of shard (static mode) or queue (dynamic mode) is set.
type workerLoop struct {
	worker   models.Worker
	plugin   TestInstance
	results  *models.ResultSet
	registry *WorkerRegistry
	logger   Logger

	shard          []models.TestItem // static assignment
	queue          *WorkQueue        // shared dynamic queue
	requeueOnCrash bool              // dynamic mode: hand crashed items to another worker
}

// run drives the loop. The returned error is ErrNoWorkers when this loop's
// blacklisting emptied the active set; item- and worker-level failures are
// absorbed here and never propagate.
func (wl *workerLoop) run(ctx context.Context) error {
	if wl.queue != nil {
		return wl.runDynamic(ctx)
	}
	return wl.runStatic(ctx)
}

func (wl *workerLoop) runStatic(ctx context.Context) error {
	for i, item := range wl.shard {
		// New items are never started after cancellation; in-flight items
		// finish or time out on their own.
		if ctx.Err() != nil {
			return nil
		}

		outcomes, err := wl.runOne(ctx, item)
		switch {
		case err == nil:
			wl.results.AddOutcomes(outcomes)
		case IsWorkerFatal(err):
			// The worker is gone. Everything it never attempted, this item
			// included, becomes TIMEOUT.
			wl.timeoutRemaining(wl.shard[i:], err)
			return wl.blacklist(err)
		default:
			wl.results.AddOutcome(wl.failureOutcome(item, err))
		}
	}
	return nil
}

func (wl *workerLoop) runDynamic(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		item, ok := wl.queue.TakeNext()
		if !ok {
			if !wl.requeueOnCrash || wl.queue.Outstanding() == 0 {
				return nil
			}
			// Another worker still holds items that may yet be requeued;
			// stay available instead of abandoning the try early.
			select {
			case <-ctx.Done():
				return nil
			case <-wl.queue.Done():
				return nil
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		outcomes, err := wl.runOne(ctx, item)
		switch {
		case err == nil:
			wl.results.AddOutcomes(outcomes)
			wl.queue.MarkItemDone()
		case IsWorkerFatal(err):
			// Only the item in hand is charged to this worker; the rest of
			// the queue stays available to its siblings.
			wl.timeoutRemaining([]models.TestItem{item}, err)
			wl.queue.MarkItemDone()
			return wl.blacklist(err)
		case wl.requeueOnCrash:
			if wl.queue.Requeue(item) {
				if wl.logger != nil {
					wl.logger.Debugf("worker %s: requeueing %s after recoverable failure: %v",
						wl.worker.ID, wl.plugin.UniqueName(item), err)
				}
				continue
			}
			// Requeue budget exhausted: the failure is terminal this try.
			if wl.logger != nil {
				wl.logger.Warnf("worker %s: %s exhausted its requeue budget",
					wl.worker.ID, wl.plugin.UniqueName(item))
			}
			wl.results.AddOutcome(wl.failureOutcome(item, err))
			wl.queue.MarkItemDone()
		default:
			wl.results.AddOutcome(wl.failureOutcome(item, err))
			wl.queue.MarkItemDone()
		}
	}
}

// runOne invokes the plugin executor for a single item. A panic from the
// plugin is caught here and converted into a worker-fatal error so it can
// never crash the whole orchestration run.
func (wl *workerLoop) runOne(ctx context.Context, item models.TestItem) (outcomes []models.TestOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewWorkerFatalError(wl.worker.ID,
				fmt.Sprintf("plugin panicked running %s", wl.plugin.UniqueName(item)),
				fmt.Errorf("panic: %v", r))
		}
	}()
	return wl.plugin.RunOneItem(ctx, wl.worker, item)
}

// failureOutcome classifies a recoverable per-item error into a terminal
// outcome: known item crashes become CRASH, anything else FAIL.
func (wl *workerLoop) failureOutcome(item models.TestItem, err error) models.TestOutcome {
	status := models.StatusFail
	if IsItemError(err) {
		status = models.StatusCrash
	}
	if wl.logger != nil {
		wl.logger.Warnf("worker %s: %s: %v", wl.worker.ID, status, err)
	}
	return models.TestOutcome{
		Name:   wl.plugin.UniqueName(item),
		Status: status,
		Log:    err.Error(),
	}
}

func (wl *workerLoop) timeoutRemaining(items []models.TestItem, cause error) {
	outcomes := make([]models.TestOutcome, 0, len(items))
	for _, item := range items {
		outcomes = append(outcomes, models.TestOutcome{
			Name:   wl.plugin.UniqueName(item),
			Status: models.StatusTimeout,
			Log:    cause.Error(),
		})
	}
	wl.results.AddOutcomes(outcomes)
}

func (wl *workerLoop) blacklist(cause error) error {
	if wl.logger != nil {
		wl.logger.Warnf("blacklisting worker %s: %v", wl.worker.ID, cause)
	}
	if err := wl.registry.Blacklist(wl.worker, cause.Error()); err != nil {
		return err
	}
	return nil
}
