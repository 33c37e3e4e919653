// Package engine implements the pipeline state machine: ordered phase
// execution with bounded-retry task dispatch, approval gating between phases,
// interval checkpointing, and resume from any non-terminal checkpoint.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acuy-d/bmadflow/internal/agent"
	"github.com/acuy-d/bmadflow/internal/checkpoint"
	"github.com/acuy-d/bmadflow/internal/config"
	"github.com/acuy-d/bmadflow/internal/prompt"
)

// Mode selects how much human interaction a run requires.
type Mode string

const (
	// ModeAuto runs every phase without stopping.
	ModeAuto Mode = "auto"
	// ModeSemi blocks on the approval gate between phases.
	ModeSemi Mode = "semi"
	// ModeDryRun dispatches simulated work and engages no gate.
	ModeDryRun Mode = "dry-run"
)

// IsValid returns true if the mode is one of the known values.
func (m Mode) IsValid() bool {
	switch m {
	case ModeAuto, ModeSemi, ModeDryRun:
		return true
	default:
		return false
	}
}

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("unknown mode %q (valid: auto, semi, dry-run)", s)
	}
	return m, nil
}

// PipelineStatus is the lifecycle state of a whole run.
type PipelineStatus string

const (
	StatusRunning     PipelineStatus = "RUNNING"
	StatusCompleted   PipelineStatus = "COMPLETED"
	StatusFailed      PipelineStatus = "FAILED"
	StatusAborted     PipelineStatus = "ABORTED"
	StatusInterrupted PipelineStatus = "INTERRUPTED"
)

// IsTerminal returns true if the status admits no further progress.
// INTERRUPTED is not terminal; an interrupted run is resumable.
func (s PipelineStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAborted:
		return true
	default:
		return false
	}
}

// PhaseStatus is the lifecycle state of one phase.
type PhaseStatus string

const (
	PhasePending          PhaseStatus = "PENDING"
	PhaseRunning          PhaseStatus = "RUNNING"
	PhaseAwaitingApproval PhaseStatus = "AWAITING_APPROVAL"
	PhaseCompleted        PhaseStatus = "COMPLETED"
	PhaseFailed           PhaseStatus = "FAILED"
	PhaseSkipped          PhaseStatus = "SKIPPED"
)

// TaskStatus is the lifecycle state of one task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
)

// Task is one unit of work within a phase. Description holds the unrendered
// template; variables are expanded at dispatch time so a modify decision can
// still influence later phases. A COMPLETED task is immutable and is never
// re-dispatched, including after resume.
type Task struct {
	ID          string
	PhaseName   string
	Role        agent.Role
	Description string
	Status      TaskStatus
	Attempts    int
	Result      string
	Error       string
}

// Phase is one ordered stage of the pipeline. Its task list is mutated only
// by the goroutine driving the phase.
type Phase struct {
	Name     string
	Enabled  bool
	Parallel bool
	Status   PhaseStatus
	Tasks    []*Task
}

// Pipeline is the full state of one run.
type Pipeline struct {
	ID          string
	Objective   string
	Mode        Mode
	Status      PipelineStatus
	Phases      []*Phase
	CreatedAt   time.Time
	CompletedAt *time.Time

	// Vars feed task template rendering; a modify decision merges its
	// payload here so it reaches every later phase.
	Vars prompt.Vars
}

// buildPipeline constructs a fresh run from the configured phases. Task IDs
// are deterministic per phase position so checkpoint snapshots map back onto
// a rebuilt pipeline on resume.
func buildPipeline(cfg config.Pipeline, objective string, mode Mode) *Pipeline {
	p := &Pipeline{
		ID:        uuid.NewString(),
		Objective: objective,
		Mode:      mode,
		Status:    StatusRunning,
		CreatedAt: time.Now().UTC(),
		Vars:      prompt.Vars{"objective": objective},
	}
	for _, pc := range cfg.Phases {
		ph := &Phase{
			Name:     pc.Name,
			Enabled:  pc.IsEnabled(),
			Parallel: pc.Parallel,
			Status:   PhasePending,
		}
		for i, tt := range pc.Tasks {
			role, _ := agent.ParseRole(tt.Role) // config is validated at ingress
			ph.Tasks = append(ph.Tasks, &Task{
				ID:          fmt.Sprintf("%s-%02d", pc.Name, i+1),
				PhaseName:   pc.Name,
				Role:        role,
				Description: tt.Description,
				Status:      TaskPending,
			})
		}
		p.Phases = append(p.Phases, ph)
	}
	return p
}

// snapshot builds a checkpoint from the current task states. A RUNNING task
// has no durable partial result, so it is persisted as PENDING; snapshots are
// only ever taken between discrete task completions.
func (p *Pipeline) snapshot(reason checkpoint.Reason, phaseName string) *checkpoint.Checkpoint {
	cp := &checkpoint.Checkpoint{
		PipelineID:     p.ID,
		PhaseName:      phaseName,
		PipelineStatus: string(p.Status),
		Reason:         reason,
		Objective:      p.Objective,
		Mode:           string(p.Mode),
	}
	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			status := t.Status
			if status == TaskRunning {
				status = TaskPending
			}
			cp.TaskSnapshots = append(cp.TaskSnapshots, checkpoint.TaskSnapshot{
				ID:        t.ID,
				PhaseName: t.PhaseName,
				Status:    string(status),
				Attempts:  t.Attempts,
				Result:    t.Result,
				Error:     t.Error,
			})
		}
	}
	return cp
}

// applySnapshots restores completed work from a checkpoint onto a rebuilt
// pipeline. COMPLETED tasks keep their results and are never re-dispatched;
// every other task restarts from PENDING with attempts reset. A snapshot task
// absent from the current configuration means the config drifted since the
// checkpoint was written.
func (p *Pipeline) applySnapshots(cp *checkpoint.Checkpoint) error {
	byID := make(map[string]*Task)
	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			byID[t.ID] = t
		}
	}

	for _, s := range cp.TaskSnapshots {
		t, ok := byID[s.ID]
		if !ok {
			return fmt.Errorf("checkpoint task %s not present in current configuration", s.ID)
		}
		if TaskStatus(s.Status) == TaskCompleted {
			t.Status = TaskCompleted
			t.Attempts = s.Attempts
			t.Result = s.Result
		}
	}

	for _, ph := range p.Phases {
		if !ph.Enabled {
			ph.Status = PhaseSkipped
			continue
		}
		if len(ph.Tasks) == 0 {
			continue
		}
		done := true
		for _, t := range ph.Tasks {
			if t.Status != TaskCompleted {
				done = false
				break
			}
		}
		if done {
			ph.Status = PhaseCompleted
		}
	}
	return nil
}

// PhaseSummary is the per-phase slice of a run result.
type PhaseSummary struct {
	Name   string      `json:"name"`
	Status PhaseStatus `json:"status"`
	Tasks  int         `json:"tasks"`
}

// RunResult is the exit contract of a run. Err carries the domain failure
// that ended the run (retry exhaustion, rejection); infrastructure failures
// are returned as errors from Start and Resume instead.
type RunResult struct {
	Success        bool           `json:"success"`
	PipelineID     string         `json:"pipelineId"`
	FinalStatus    PipelineStatus `json:"finalStatus"`
	Phases         []PhaseSummary `json:"phases"`
	LastCheckpoint int            `json:"lastCheckpoint,omitempty"`
	Err            error          `json:"-"`
}

func (p *Pipeline) result(lastSeq int, err error) *RunResult {
	r := &RunResult{
		Success:        p.Status == StatusCompleted,
		PipelineID:     p.ID,
		FinalStatus:    p.Status,
		LastCheckpoint: lastSeq,
		Err:            err,
	}
	for _, ph := range p.Phases {
		r.Phases = append(r.Phases, PhaseSummary{Name: ph.Name, Status: ph.Status, Tasks: len(ph.Tasks)})
	}
	return r
}
