package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WithInterruptCancel derives a context that is cancelled when the process
// receives SIGINT or SIGTERM. Cancellation is cooperative: worker loops
// stop scheduling new items but items already dispatched to a device are
// allowed to run to their own timeout. The signal handler itself never
// blocks.
//
// The returned stop function releases the signal registration and must be
// called when the run finishes.
func WithInterruptCancel(ctx context.Context, logger Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			if logger != nil {
				logger.Warnf("received %s, stopping new work; in-flight items will settle", sig)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
