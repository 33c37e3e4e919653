package approval

import (
	"context"
	"testing"
	"time"
)

func TestGateDeliversDecision(t *testing.T) {
	g := NewGate()

	go func() {
		time.Sleep(10 * time.Millisecond)
		if err := g.Decide(Decision{Outcome: OutcomeApprove}); err != nil {
			t.Errorf("Decide: %v", err)
		}
	}()

	d, err := g.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if d.Outcome != OutcomeApprove {
		t.Errorf("Outcome = %q, want %q", d.Outcome, OutcomeApprove)
	}
}

func TestGateDecisionBeforeAwait(t *testing.T) {
	g := NewGate()

	// A decision made before the pipeline reaches the gate must not be lost.
	if err := g.Decide(Decision{Outcome: OutcomeReject, Note: "scope creep"}); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := g.Await(ctx)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if d.Outcome != OutcomeReject {
		t.Errorf("Outcome = %q, want %q", d.Outcome, OutcomeReject)
	}
	if d.Note != "scope creep" {
		t.Errorf("Note = %q, want %q", d.Note, "scope creep")
	}
}

func TestGateModifyCarriesPayload(t *testing.T) {
	g := NewGate()

	payload := map[string]string{"focus": "payments flow"}
	if err := g.Decide(Decision{Outcome: OutcomeModify, Payload: payload}); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	d, err := g.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if d.Outcome != OutcomeModify {
		t.Errorf("Outcome = %q, want %q", d.Outcome, OutcomeModify)
	}
	if d.Payload["focus"] != "payments flow" {
		t.Errorf("Payload = %v, want focus=payments flow", d.Payload)
	}
}

func TestGateRejectsInvalidOutcome(t *testing.T) {
	g := NewGate()

	if err := g.Decide(Decision{Outcome: Outcome("maybe")}); err == nil {
		t.Fatal("expected error for invalid outcome")
	}
}

func TestGateRejectsSecondPendingDecision(t *testing.T) {
	g := NewGate()

	if err := g.Decide(Decision{Outcome: OutcomeApprove}); err != nil {
		t.Fatalf("first Decide: %v", err)
	}
	if err := g.Decide(Decision{Outcome: OutcomeReject}); err == nil {
		t.Fatal("expected error for second pending decision")
	}
}

func TestGateAwaitCancelled(t *testing.T) {
	g := NewGate()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := g.Await(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled Await")
	}
}
