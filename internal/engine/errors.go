package engine

import "fmt"

// InvalidResumeStateError rejects a resume attempt outright: the referenced
// checkpoint is missing, terminal, rejected, or incompatible with the current
// configuration. There is no partial resume.
type InvalidResumeStateError struct {
	PipelineID string
	Reason     string
}

func (e *InvalidResumeStateError) Error() string {
	return fmt.Sprintf("cannot resume pipeline %s: %s", e.PipelineID, e.Reason)
}

// CheckpointWriteError is fatal: the run cannot safely continue making
// progress it cannot record.
type CheckpointWriteError struct {
	PipelineID string
	Err        error
}

func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("checkpoint write failed for pipeline %s: %v", e.PipelineID, e.Err)
}

func (e *CheckpointWriteError) Unwrap() error { return e.Err }
