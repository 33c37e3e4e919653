package checkpoint

// Reason records why a checkpoint was written.
type Reason string

const (
	// ReasonInterval marks a checkpoint written after every N completed tasks.
	ReasonInterval Reason = "interval"
	// ReasonPhaseComplete marks a checkpoint written when a phase finishes.
	ReasonPhaseComplete Reason = "phase-complete"
	// ReasonInterrupted marks the forced checkpoint written during shutdown.
	ReasonInterrupted Reason = "interrupted"
	// ReasonRejected marks the checkpoint written when an approval is rejected.
	ReasonRejected Reason = "rejected"
	// ReasonError marks the checkpoint written when a phase fails.
	ReasonError Reason = "error"
)

// IsValid returns true if the reason is one of the known values.
func (r Reason) IsValid() bool {
	switch r {
	case ReasonInterval, ReasonPhaseComplete, ReasonInterrupted, ReasonRejected, ReasonError:
		return true
	default:
		return false
	}
}

// TaskSnapshot is a point-in-time copy of a task's persisted fields.
type TaskSnapshot struct {
	ID        string `json:"id"`
	PhaseName string `json:"phaseName"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Checkpoint is an immutable snapshot of pipeline progress. Snapshots are
// taken between discrete task completions, never mid-invocation, so every
// persisted task state is consistent.
type Checkpoint struct {
	PipelineID     string         `json:"pipelineId"`
	Sequence       int            `json:"sequence"`
	PhaseName      string         `json:"phaseName"`
	PipelineStatus string         `json:"pipelineStatus"`
	Reason         Reason         `json:"reason"`
	Timestamp      string         `json:"timestamp"`
	TaskSnapshots  []TaskSnapshot `json:"taskSnapshots"`

	// Objective and Mode are carried so a pipeline can be rebuilt on resume
	// without consulting anything beyond the checkpoint and the run config.
	Objective string `json:"objective"`
	Mode      string `json:"mode"`
}

// Ref identifies a checkpoint to resume from. A zero Sequence means "latest".
type Ref struct {
	PipelineID string `json:"pipelineId"`
	Sequence   int    `json:"sequence,omitempty"`
}
