// Package agent defines the boundary to external capability providers and the
// dispatcher that drives one task invocation through timeout and retry.
// The core never inspects how a provider produces its result.
package agent

import (
	"context"
	"fmt"
)

// Role identifies which capability a task is assigned to. The set is closed:
// per-role configuration is validated against these values at ingress.
type Role string

const (
	RoleArchitect Role = "architect"
	RoleDeveloper Role = "developer"
	RoleTester    Role = "tester"
	RoleDebugger  Role = "debugger"
)

// Roles lists every valid role.
var Roles = []Role{RoleArchitect, RoleDeveloper, RoleTester, RoleDebugger}

// IsValid returns true if the role is one of the known values.
func (r Role) IsValid() bool {
	switch r {
	case RoleArchitect, RoleDeveloper, RoleTester, RoleDebugger:
		return true
	default:
		return false
	}
}

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown agent role %q (valid: %v)", s, Roles)
	}
	return r, nil
}

// Request is the payload handed to a provider for one task.
type Request struct {
	TaskID      string            `json:"task_id"`
	Phase       string            `json:"phase"`
	Role        Role              `json:"role"`
	Description string            `json:"description"`
	Vars        map[string]string `json:"vars,omitempty"`

	// Simulate asks the provider for a simulated result (dry-run mode).
	Simulate bool `json:"simulate,omitempty"`
}

// Result is what a provider returns for a successful invocation.
type Result struct {
	Output string `json:"output"`
}

// Invoker is the opaque capability boundary. Implementations must honor
// context cancellation.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req Request) (*Result, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// TimeoutError indicates a task exceeded its per-task timeout. Transient;
// subject to the retry policy.
type TimeoutError struct {
	TaskID  string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s", e.TaskID, e.Timeout)
}

// InvocationError indicates the provider failed or returned a malformed
// result. Transient; subject to the retry policy.
type InvocationError struct {
	TaskID string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("task %s invocation failed: %v", e.TaskID, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// RetryExhaustedError indicates all retry attempts were used. The task is
// FAILED and the failure propagates to the phase and pipeline.
type RetryExhaustedError struct {
	TaskID   string
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("task %s failed after %d attempts: %v", e.TaskID, e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastErr }
