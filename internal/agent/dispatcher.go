package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/acuy-d/bmadflow/internal/metrics"
	"github.com/acuy-d/bmadflow/internal/retry"
)

// OutcomeStatus classifies the end state of a dispatch.
type OutcomeStatus string

const (
	// OutcomeCompleted means the provider returned a result.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeFailed means retries were exhausted.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeCancelled means the dispatch context was cancelled before a
	// terminal outcome. Not retried.
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is the terminal result of dispatching one task.
type Outcome struct {
	Status   OutcomeStatus
	Result   *Result
	Err      error
	Attempts int
}

// Dispatcher invokes the external capability for one task, enforcing the
// per-task timeout and classifying failures. It holds no cross-task state;
// the owning phase applies each outcome to its own task list.
type Dispatcher struct {
	invoker  Invoker
	policy   *retry.Policy
	timeout  time.Duration
	simulate bool
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher creates a Dispatcher. timeout applies per attempt.
func NewDispatcher(invoker Invoker, policy *retry.Policy, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		invoker: invoker,
		policy:  policy,
		timeout: timeout,
		logger:  logger,
	}
}

// SetSimulate configures dry-run mode: every request carries Simulate=true so
// the provider returns simulated results and performs no external work.
func (d *Dispatcher) SetSimulate(on bool) {
	d.simulate = on
}

// SetMetrics attaches metrics collectors. Optional.
func (d *Dispatcher) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// Dispatch runs the task to a terminal outcome: either a result, a cancelled
// dispatch, or failure after maxRetries additional attempts. Timeouts and
// provider errors are transient; the retry policy decides whether to go again
// and how long to back off.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, maxRetries int) Outcome {
	if d.simulate {
		req.Simulate = true
	}

	attempts := 0
	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return Outcome{Status: OutcomeCancelled, Err: err, Attempts: attempts}
		}

		attempts++
		res, err := d.invokeOnce(ctx, req)
		if err == nil {
			d.metrics.ObserveTaskAttempt(string(req.Role), "success")
			d.logger.Debug("task completed", "task", req.TaskID, "role", string(req.Role), "attempts", attempts)
			return Outcome{Status: OutcomeCompleted, Result: res, Attempts: attempts}
		}

		if errors.Is(err, context.Canceled) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
			d.metrics.ObserveTaskAttempt(string(req.Role), "cancelled")
			return Outcome{Status: OutcomeCancelled, Err: err, Attempts: attempts}
		}

		lastErr = err
		d.metrics.ObserveTaskAttempt(string(req.Role), "error")
		d.logger.Warn("task attempt failed", "task", req.TaskID, "attempt", attempts, "error", err)

		// attempts-1 is the number of retries already used.
		decision := d.policy.Decide(attempts-1, maxRetries)
		if !decision.Retry {
			exhausted := &RetryExhaustedError{TaskID: req.TaskID, Attempts: attempts, LastErr: lastErr}
			return Outcome{Status: OutcomeFailed, Err: exhausted, Attempts: attempts}
		}

		d.metrics.ObserveRetry()
		d.logger.Debug("retrying task", "task", req.TaskID, "attempt", attempts+1, "backoff", decision.Delay)
		if err := sleepCtx(ctx, decision.Delay); err != nil {
			return Outcome{Status: OutcomeCancelled, Err: err, Attempts: attempts}
		}
	}
}

// invokeOnce runs a single attempt, racing the provider against the per-task
// timeout. A provider that returns a nil result without error is malformed.
func (d *Dispatcher) invokeOnce(ctx context.Context, req Request) (*Result, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if d.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	type invokeResult struct {
		res *Result
		err error
	}
	done := make(chan invokeResult, 1)
	go func() {
		res, err := d.invoker.Invoke(attemptCtx, req)
		done <- invokeResult{res, err}
	}()

	select {
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TimeoutError{TaskID: req.TaskID, Timeout: d.timeout.String()}
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, &TimeoutError{TaskID: req.TaskID, Timeout: d.timeout.String()}
			}
			return nil, &InvocationError{TaskID: req.TaskID, Err: r.err}
		}
		if r.res == nil {
			return nil, &InvocationError{TaskID: req.TaskID, Err: errors.New("provider returned nil result")}
		}
		return r.res, nil
	}
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
