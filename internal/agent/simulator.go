package agent

import (
	"context"
	"fmt"
)

// Simulator is a deterministic in-process Invoker. It backs dry-run mode and
// tests; it never touches anything outside its own return value.
type Simulator struct {
	// Delay in results is not simulated; the dispatcher's timeout machinery
	// is exercised with real providers or test stubs instead.
}

// NewSimulator creates a Simulator.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Invoke returns a canned result describing the work that would have been
// performed.
func (s *Simulator) Invoke(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{
		Output: fmt.Sprintf("[simulated] %s/%s: %s", req.Phase, req.Role, req.Description),
	}, nil
}
