package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/acuy-d/bmadflow/internal/retry"
)

// fastPolicy returns a seeded policy with near-zero delays so tests run fast.
func fastPolicy() *retry.Policy {
	p := retry.NewSeededPolicy(1)
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 2 * time.Millisecond
	return p
}

func req(id string) Request {
	return Request{TaskID: id, Phase: "business", Role: RoleArchitect, Description: "draft the brief"}
}

func TestDispatchSuccessFirstAttempt(t *testing.T) {
	invoker := InvokerFunc(func(ctx context.Context, r Request) (*Result, error) {
		return &Result{Output: "done"}, nil
	})
	d := NewDispatcher(invoker, fastPolicy(), time.Second, nil)

	out := d.Dispatch(context.Background(), req("t1"), 2)
	if out.Status != OutcomeCompleted {
		t.Fatalf("Status = %q, want %q (err: %v)", out.Status, OutcomeCompleted, out.Err)
	}
	if out.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", out.Attempts)
	}
	if out.Result == nil || out.Result.Output != "done" {
		t.Errorf("Result = %+v, want output %q", out.Result, "done")
	}
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	invoker := InvokerFunc(func(ctx context.Context, r Request) (*Result, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("provider hiccup")
		}
		return &Result{Output: "eventually"}, nil
	})
	d := NewDispatcher(invoker, fastPolicy(), time.Second, nil)

	out := d.Dispatch(context.Background(), req("t2"), 2)
	if out.Status != OutcomeCompleted {
		t.Fatalf("Status = %q, want %q (err: %v)", out.Status, OutcomeCompleted, out.Err)
	}
	if out.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", out.Attempts)
	}
}

func TestDispatchRetryBound(t *testing.T) {
	// maxRetries=2 means exactly 3 invocation attempts, then failure.
	var calls atomic.Int32
	invoker := InvokerFunc(func(ctx context.Context, r Request) (*Result, error) {
		calls.Add(1)
		return nil, errors.New("always fails")
	})
	d := NewDispatcher(invoker, fastPolicy(), time.Second, nil)

	out := d.Dispatch(context.Background(), req("t3"), 2)
	if out.Status != OutcomeFailed {
		t.Fatalf("Status = %q, want %q", out.Status, OutcomeFailed)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("invocation attempts = %d, want 3", got)
	}
	if out.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", out.Attempts)
	}

	var exhausted *RetryExhaustedError
	if !errors.As(out.Err, &exhausted) {
		t.Fatalf("Err = %v, want RetryExhaustedError", out.Err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("exhausted.Attempts = %d, want 3", exhausted.Attempts)
	}
	var invErr *InvocationError
	if !errors.As(out.Err, &invErr) {
		t.Errorf("Err chain should include the last InvocationError, got %v", out.Err)
	}
}

func TestDispatchZeroRetries(t *testing.T) {
	var calls atomic.Int32
	invoker := InvokerFunc(func(ctx context.Context, r Request) (*Result, error) {
		calls.Add(1)
		return nil, errors.New("nope")
	})
	d := NewDispatcher(invoker, fastPolicy(), time.Second, nil)

	out := d.Dispatch(context.Background(), req("t4"), 0)
	if out.Status != OutcomeFailed {
		t.Fatalf("Status = %q, want %q", out.Status, OutcomeFailed)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("invocation attempts = %d, want 1", got)
	}
}

func TestDispatchTimeoutIsTransient(t *testing.T) {
	var calls atomic.Int32
	invoker := InvokerFunc(func(ctx context.Context, r Request) (*Result, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done() // hang until the per-attempt timeout fires
			return nil, ctx.Err()
		}
		return &Result{Output: "recovered"}, nil
	})
	d := NewDispatcher(invoker, fastPolicy(), 10*time.Millisecond, nil)

	out := d.Dispatch(context.Background(), req("t5"), 2)
	if out.Status != OutcomeCompleted {
		t.Fatalf("Status = %q, want %q (err: %v)", out.Status, OutcomeCompleted, out.Err)
	}
	if out.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2 (timeout then success)", out.Attempts)
	}
}

func TestDispatchTimeoutExhaustion(t *testing.T) {
	invoker := InvokerFunc(func(ctx context.Context, r Request) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	d := NewDispatcher(invoker, fastPolicy(), 5*time.Millisecond, nil)

	out := d.Dispatch(context.Background(), req("t6"), 1)
	if out.Status != OutcomeFailed {
		t.Fatalf("Status = %q, want %q", out.Status, OutcomeFailed)
	}
	var timeoutErr *TimeoutError
	if !errors.As(out.Err, &timeoutErr) {
		t.Errorf("Err chain should include TimeoutError, got %v", out.Err)
	}
}

func TestDispatchNilResultIsInvocationError(t *testing.T) {
	invoker := InvokerFunc(func(ctx context.Context, r Request) (*Result, error) {
		return nil, nil // malformed provider
	})
	d := NewDispatcher(invoker, fastPolicy(), time.Second, nil)

	out := d.Dispatch(context.Background(), req("t7"), 0)
	if out.Status != OutcomeFailed {
		t.Fatalf("Status = %q, want %q", out.Status, OutcomeFailed)
	}
	var invErr *InvocationError
	if !errors.As(out.Err, &invErr) {
		t.Errorf("Err chain should include InvocationError, got %v", out.Err)
	}
}

func TestDispatchCancelledBeforeStart(t *testing.T) {
	invoker := InvokerFunc(func(ctx context.Context, r Request) (*Result, error) {
		t.Error("invoker should not run after cancellation")
		return nil, nil
	})
	d := NewDispatcher(invoker, fastPolicy(), time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := d.Dispatch(ctx, req("t8"), 2)
	if out.Status != OutcomeCancelled {
		t.Fatalf("Status = %q, want %q", out.Status, OutcomeCancelled)
	}
	if out.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", out.Attempts)
	}
}

func TestDispatchCancelledDuringBackoff(t *testing.T) {
	p := retry.NewSeededPolicy(1)
	p.BaseDelay = time.Hour // backoff would block forever without cancellation
	p.MaxDelay = time.Hour

	invoker := InvokerFunc(func(ctx context.Context, r Request) (*Result, error) {
		return nil, errors.New("fail once")
	})
	d := NewDispatcher(invoker, p, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	out := d.Dispatch(ctx, req("t9"), 3)
	if out.Status != OutcomeCancelled {
		t.Fatalf("Status = %q, want %q", out.Status, OutcomeCancelled)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Dispatch took %v, cancellation did not interrupt backoff", elapsed)
	}
}

func TestDispatchSimulatePropagates(t *testing.T) {
	var sawSimulate atomic.Bool
	invoker := InvokerFunc(func(ctx context.Context, r Request) (*Result, error) {
		sawSimulate.Store(r.Simulate)
		return &Result{Output: "sim"}, nil
	})
	d := NewDispatcher(invoker, fastPolicy(), time.Second, nil)
	d.SetSimulate(true)

	out := d.Dispatch(context.Background(), req("t10"), 0)
	if out.Status != OutcomeCompleted {
		t.Fatalf("Status = %q, want %q", out.Status, OutcomeCompleted)
	}
	if !sawSimulate.Load() {
		t.Error("request should carry Simulate=true in dry-run mode")
	}
}

func TestSimulatorProducesResult(t *testing.T) {
	s := NewSimulator()
	res, err := s.Invoke(context.Background(), req("t11"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Output == "" {
		t.Error("simulated output should not be empty")
	}
}
