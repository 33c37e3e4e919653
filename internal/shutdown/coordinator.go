// Package shutdown maps process signals onto context cancellation. The engine
// reacts to the cancelled context by draining in-flight work within its grace
// window and forcing an interrupted checkpoint; this package only delivers
// the signal.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Coordinator cancels a run context when an interrupt or termination signal
// arrives. A second signal terminates immediately.
type Coordinator struct {
	logger *slog.Logger
	sigCh  chan os.Signal
}

// New creates a Coordinator.
func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{logger: logger}
}

// Watch returns a child of parent that is cancelled on SIGINT or SIGTERM.
// The caller must call the returned stop function when the run ends.
func (c *Coordinator) Watch(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	c.sigCh = make(chan os.Signal, 2)
	signal.Notify(c.sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig, ok := <-c.sigCh:
			// stop closes the channel; a closed receive means the run
			// ended normally, not that a signal arrived
			if !ok {
				return
			}
			c.logger.Warn("shutdown signal received, finishing in-flight work", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			return
		}
		// a second signal skips the grace window
		if sig, ok := <-c.sigCh; ok {
			c.logger.Error("second signal received, exiting now", "signal", sig.String())
			os.Exit(130)
		}
	}()

	stop := func() {
		signal.Stop(c.sigCh)
		close(c.sigCh)
		cancel()
	}
	return ctx, stop
}
