package executor

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/harrison/devicelab/internal/models"
)

// Logger defines the leveled logging interface the executor reports
// progress through. Implementations must be safe for concurrent use.
// A nil Logger disables logging.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Options is the orchestrator configuration surface.
type Options struct {
	// MaxTries is the total number of attempts per item across tries.
	MaxTries int
	// RecoverDevices enables worker recovery between tries.
	RecoverDevices bool
	// JoinTimeout bounds how long the orchestrator waits for in-flight
	// worker loops to settle after cancellation before forcing the
	// remaining outcomes to TIMEOUT.
	JoinTimeout time.Duration
}

// DefaultOptions returns the standard orchestrator configuration.
func DefaultOptions() Options {
	return Options{
		MaxTries:       3,
		RecoverDevices: false,
		JoinTimeout:    30 * time.Second,
	}
}

// Orchestrator drives the try-loop for one test run: it obtains items from
// the plugin, fans a worker loop out across every healthy worker in
// parallel, waits for completion or cancellation, computes the retry set,
// and repeats until convergence or the try budget is exhausted.
type Orchestrator struct {
	plugin   TestInstance
	registry *WorkerRegistry
	opts     Options
	logger   Logger
}

// NewOrchestrator creates an Orchestrator. The logger may be nil.
func NewOrchestrator(plugin TestInstance, registry *WorkerRegistry, opts Options, logger Logger) *Orchestrator {
	if plugin == nil {
		panic("plugin cannot be nil")
	}
	if registry == nil {
		panic("worker registry cannot be nil")
	}
	if opts.MaxTries <= 0 {
		opts.MaxTries = 1
	}
	return &Orchestrator{
		plugin:   plugin,
		registry: registry,
		opts:     opts,
		logger:   logger,
	}
}

// RunTests executes the full try-loop and returns the aggregated results.
//
// Item- and worker-level failures are absorbed internally; the returned
// error is non-nil only for run-fatal conditions: a plugin contract
// violation, or the active worker set becoming empty. Cancellation is not
// an error: the partial aggregate is reconciled (no outcome is left in a
// provisional state) and returned.
func (o *Orchestrator) RunTests(ctx context.Context) (*models.AggregatedResultSet, error) {
	items, err := o.plugin.GetTests(ctx)
	if err != nil {
		return nil, fmt.Errorf("get tests: %w", err)
	}
	for _, item := range items {
		if o.plugin.UniqueName(item) == "" {
			return nil, fmt.Errorf("plugin returned an item with no derivable name")
		}
	}

	aggregate := &models.AggregatedResultSet{}
	pending := items

	for try := 0; try < o.opts.MaxTries && len(pending) > 0; try++ {
		if ctx.Err() != nil {
			break
		}

		if try > 0 && o.opts.RecoverDevices {
			o.recoverWorkers(ctx)
		}

		workers := o.registry.ActiveWorkers()
		if len(workers) == 0 {
			return aggregate, ErrNoWorkers
		}

		if o.logger != nil {
			o.logger.Infof("try %d/%d: %d item(s) across %d worker(s)",
				try+1, o.opts.MaxTries, len(pending), len(workers))
		}

		results := models.NewResultSet()
		// Provisional placeholders distinguish never-attempted items from
		// attempted-but-unknown ones if the run is interrupted.
		for _, item := range pending {
			results.AddOutcome(models.TestOutcome{
				Name:   o.plugin.UniqueName(item),
				Status: models.StatusNotRun,
			})
		}

		fatalErr := o.runTry(ctx, workers, pending, results)

		if ctx.Err() != nil {
			// TryReconcile on cancellation: this is the single place
			// provisional outcomes become terminal TIMEOUTs, so the
			// aggregate never carries a non-terminal state.
			n := results.MarkUnknownAsTimeout()
			if o.logger != nil && n > 0 {
				o.logger.Warnf("cancelled: %d unattempted item(s) marked TIMEOUT", n)
			}
			aggregate.Append(results)
			return aggregate, nil
		}
		if fatalErr != nil {
			results.MarkUnknownAsTimeout()
			aggregate.Append(results)
			return aggregate, fatalErr
		}

		o.resolveWildcardPlaceholders(pending, results)
		aggregate.Append(results)
		pending = o.retrySet(pending, results)
		if o.logger != nil && len(pending) > 0 {
			o.logger.Infof("try %d: %d item(s) selected for retry", try+1, len(pending))
		}
	}

	return aggregate, nil
}

// runTry fans one worker loop out per active worker and blocks until all
// return, or cancellation fires and the join timeout elapses. The returned
// error is the first run-fatal condition reported by a loop.
func (o *Orchestrator) runTry(ctx context.Context, workers []models.Worker, pending []models.TestItem, results *models.ResultSet) error {
	var queue *WorkQueue
	var shards [][]models.TestItem
	requeueOnCrash := false

	if o.plugin.ShouldShard() {
		queue = NewWorkQueue(pending)
		if rp, ok := o.plugin.(RequeuePolicy); ok {
			requeueOnCrash = rp.RequeueOnCrash()
		}
	} else {
		shards = o.plugin.CreateShards(pending, len(workers))
		if shards == nil {
			shards = roundRobinShards(pending, len(workers))
		}
	}

	errCh := make(chan error, len(workers))
	var wg sync.WaitGroup

	for i, worker := range workers {
		loop := &workerLoop{
			worker:         worker,
			plugin:         o.plugin,
			results:        results,
			registry:       o.registry,
			logger:         o.logger,
			queue:          queue,
			requeueOnCrash: requeueOnCrash,
		}
		if queue == nil && i < len(shards) {
			loop.shard = shards[i]
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop.run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Cancellation is cooperative: give in-flight items the grace
		// period to settle before abandoning the join.
		select {
		case <-done:
		case <-time.After(o.opts.JoinTimeout):
			if o.logger != nil {
				o.logger.Warnf("join timeout elapsed with worker loops still running")
			}
		}
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// recoverWorkers health-checks every active worker through the plugin's
// driver and attempts recovery for the unhealthy ones. A worker that fails
// recovery is blacklisted.
func (o *Orchestrator) recoverWorkers(ctx context.Context) {
	rec, ok := o.plugin.(WorkerRecoverer)
	if !ok {
		return
	}
	for _, worker := range o.registry.ActiveWorkers() {
		if rec.IsHealthy(ctx, worker) {
			continue
		}
		if o.logger != nil {
			o.logger.Infof("recovering worker %s", worker.ID)
		}
		if err := rec.Recover(ctx, worker); err != nil {
			if o.logger != nil {
				o.logger.Warnf("worker %s failed recovery: %v", worker.ID, err)
			}
			// Ignore the empty-set condition here: the next try start
			// re-checks the active set and aborts the run there.
			_ = o.registry.Blacklist(worker, fmt.Sprintf("failed recovery: %v", err))
		}
	}
}

// retrySet selects the items to attempt on the next try. An item is
// retried iff at least one of its matched results is missing or
// unsuccessful and the plugin's retry predicate approves.
func (o *Orchestrator) retrySet(pending []models.TestItem, results *models.ResultSet) []models.TestItem {
	var next []models.TestItem
	for _, item := range pending {
		name := o.plugin.UniqueName(item)
		if item.IsWildcard() || isWildcardName(name) {
			if o.wildcardNeedsRetry(item, name, results) {
				next = append(next, item)
			}
			continue
		}
		outcome, ok := results.LastOutcomeFor(name)
		if !ok {
			outcome = models.TestOutcome{Name: name, Status: models.StatusUnknown}
		}
		if !outcome.Status.Succeeded() && o.plugin.ShouldRetry(item, outcome) {
			next = append(next, item)
		}
	}
	return next
}

// wildcardNeedsRetry matches a wildcard item's pattern against every result
// name recorded this try and takes the most recent outcome per match. Any
// unsuccessful match retries the whole batch. The pattern's own placeholder
// entry is ignored once real per-test results exist for it; with no real
// matches at all, the batch was never reported on and must be retried.
func (o *Orchestrator) wildcardNeedsRetry(item models.TestItem, pattern string, results *models.ResultSet) bool {
	var matched []string
	for _, name := range results.Names() {
		if name == pattern {
			continue
		}
		if ok, err := path.Match(pattern, name); err == nil && ok {
			matched = append(matched, name)
		}
	}
	if len(matched) == 0 {
		// Nothing was reported for the batch. Judge by the pattern's own
		// entry (a synthesized CRASH/TIMEOUT, or the NOTRUN placeholder).
		outcome, ok := results.LastOutcomeFor(pattern)
		if !ok {
			outcome = models.TestOutcome{Name: pattern, Status: models.StatusUnknown}
		}
		return !outcome.Status.Succeeded() && o.plugin.ShouldRetry(item, outcome)
	}
	for _, name := range matched {
		outcome, ok := results.LastOutcomeFor(name)
		if !ok || !outcome.Status.Succeeded() {
			if o.plugin.ShouldRetry(item, outcome) {
				return true
			}
		}
	}
	return false
}

// resolveWildcardPlaceholders settles each wildcard item's provisional entry
// after a completed try. Member tests report under their own names, so the
// pattern's placeholder would otherwise survive as NOTRUN into the final
// aggregate. The batch verdict is PASS when every matched member succeeded,
// FAIL otherwise. With no matched members the entry is left for the item's
// own recorded outcome (or the cancellation reconcile) to settle.
func (o *Orchestrator) resolveWildcardPlaceholders(pending []models.TestItem, results *models.ResultSet) {
	for _, item := range pending {
		name := o.plugin.UniqueName(item)
		if !item.IsWildcard() && !isWildcardName(name) {
			continue
		}
		matched := false
		verdict := models.StatusPass
		for _, rn := range results.Names() {
			if rn == name {
				continue
			}
			if ok, err := path.Match(name, rn); err != nil || !ok {
				continue
			}
			matched = true
			if outcome, ok := results.LastOutcomeFor(rn); !ok || !outcome.Status.Succeeded() {
				verdict = models.StatusFail
			}
		}
		if matched {
			results.ResolveProvisional(name, verdict)
		}
	}
}

func isWildcardName(name string) bool {
	return len(name) > 0 && name[len(name)-1] == '*'
}

// roundRobinShards is the fallback static partition when the plugin does
// not supply its own.
func roundRobinShards(items []models.TestItem, n int) [][]models.TestItem {
	if n <= 0 {
		return nil
	}
	shards := make([][]models.TestItem, n)
	for i, item := range items {
		shards[i%n] = append(shards[i%n], item)
	}
	return shards
}
