// Package approval implements the semi-mode gate between phases. A running
// pipeline blocks on the gate until an external decision arrives; decisions
// can be fed in-process or through decision files picked up by a Watcher.
package approval

import (
	"context"
	"errors"
	"fmt"
)

// Outcome is the kind of decision made at the gate.
type Outcome string

const (
	// OutcomeApprove resumes the next phase unchanged.
	OutcomeApprove Outcome = "approve"
	// OutcomeReject aborts the pipeline.
	OutcomeReject Outcome = "reject"
	// OutcomeModify resumes with a replacement payload merged into the next
	// phase's task templates. The gate does not validate payload semantics.
	OutcomeModify Outcome = "modify"
)

// IsValid returns true if the outcome is one of the known values.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeApprove, OutcomeReject, OutcomeModify:
		return true
	default:
		return false
	}
}

// Decision is an external verdict on a completed phase.
type Decision struct {
	Outcome Outcome           `json:"outcome"`
	Payload map[string]string `json:"payload,omitempty"`
	Note    string            `json:"note,omitempty"`
}

// ErrRejected is returned by the state machine when a rejection aborts the
// pipeline. Not an engineering failure.
var ErrRejected = errors.New("approval rejected")

// Gate suspends a phase transition until a decision arrives. There is no
// built-in timeout; only context cancellation interrupts the wait.
type Gate struct {
	decisions chan Decision
}

// NewGate creates a Gate. The decision channel is buffered so a decision
// made moments before the pipeline reaches the gate is not lost.
func NewGate() *Gate {
	return &Gate{decisions: make(chan Decision, 1)}
}

// Await blocks until a decision arrives or ctx is cancelled.
func (g *Gate) Await(ctx context.Context) (Decision, error) {
	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case d := <-g.decisions:
		return d, nil
	}
}

// Decide submits a decision. It returns an error if the decision is invalid
// or if an undelivered decision is already pending.
func (g *Gate) Decide(d Decision) error {
	if !d.Outcome.IsValid() {
		return fmt.Errorf("invalid approval outcome %q", d.Outcome)
	}
	select {
	case g.decisions <- d:
		return nil
	default:
		return fmt.Errorf("a decision is already pending")
	}
}
