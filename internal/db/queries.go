package db

import (
	"database/sql"
	"fmt"
)

// PipelineEvent represents a row in the pipeline_events table.
type PipelineEvent struct {
	ID         int
	PipelineID string
	Event      string
	Phase      string
	Detail     string
	Timestamp  string
}

// TaskAttempt represents a row in the task_attempts table.
type TaskAttempt struct {
	ID         int
	PipelineID string
	TaskID     string
	Phase      string
	Role       string
	Attempts   int
	Outcome    string
	Error      string
	DurationMs int
	Timestamp  string
}

// LogPipelineEvent inserts a pipeline lifecycle event.
func (d *DB) LogPipelineEvent(pipelineID, event, phase, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO pipeline_events (pipeline_id, event, phase, detail) VALUES (?, ?, ?, ?)`,
		pipelineID, event, phase, detail,
	)
	if err != nil {
		return fmt.Errorf("log pipeline event: %w", err)
	}
	return nil
}

// LogTaskAttempt records the terminal outcome of one task dispatch.
func (d *DB) LogTaskAttempt(pipelineID, taskID, phase, role string, attempts int, outcome, errMsg string, durationMs int) error {
	_, err := d.conn.Exec(
		`INSERT INTO task_attempts (pipeline_id, task_id, phase, role, attempts, outcome, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pipelineID, taskID, phase, role, attempts, outcome, errMsg, durationMs,
	)
	if err != nil {
		return fmt.Errorf("log task attempt: %w", err)
	}
	return nil
}

// LogApprovalEvent records an approval gate decision.
func (d *DB) LogApprovalEvent(pipelineID, phase, decision, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO approval_events (pipeline_id, phase, decision, detail) VALUES (?, ?, ?, ?)`,
		pipelineID, phase, decision, detail,
	)
	if err != nil {
		return fmt.Errorf("log approval event: %w", err)
	}
	return nil
}

// RecentEvents returns the most recent pipeline events, newest first.
func (d *DB) RecentEvents(pipelineID string, limit int) ([]PipelineEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, pipeline_id, event, phase, detail, timestamp
		 FROM pipeline_events WHERE pipeline_id = ?
		 ORDER BY timestamp DESC, id DESC LIMIT ?`,
		pipelineID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var events []PipelineEvent
	for rows.Next() {
		var e PipelineEvent
		var phase, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.PipelineID, &e.Event, &phase, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pipeline event: %w", err)
		}
		e.Phase = phase.String
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// TaskAttempts returns all recorded task outcomes for a pipeline in insertion
// order.
func (d *DB) TaskAttempts(pipelineID string) ([]TaskAttempt, error) {
	rows, err := d.conn.Query(
		`SELECT id, pipeline_id, task_id, phase, role, attempts, outcome, error, duration_ms, timestamp
		 FROM task_attempts WHERE pipeline_id = ? ORDER BY id ASC`,
		pipelineID,
	)
	if err != nil {
		return nil, fmt.Errorf("query task attempts: %w", err)
	}
	defer rows.Close()

	var attempts []TaskAttempt
	for rows.Next() {
		var a TaskAttempt
		var errMsg sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&a.ID, &a.PipelineID, &a.TaskID, &a.Phase, &a.Role, &a.Attempts, &a.Outcome, &errMsg, &durationMs, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan task attempt: %w", err)
		}
		a.Error = errMsg.String
		a.DurationMs = int(durationMs.Int64)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
