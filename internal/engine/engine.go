package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/acuy-d/bmadflow/internal/agent"
	"github.com/acuy-d/bmadflow/internal/approval"
	"github.com/acuy-d/bmadflow/internal/checkpoint"
	"github.com/acuy-d/bmadflow/internal/config"
	"github.com/acuy-d/bmadflow/internal/db"
	"github.com/acuy-d/bmadflow/internal/metrics"
	"github.com/acuy-d/bmadflow/internal/prompt"
)

const defaultShutdownGrace = 10 * time.Second

// Engine drives a pipeline run to a terminal state. One Engine serves one
// run at a time; phase sequencing is cooperative, exactly one phase is in
// progress at any instant.
type Engine struct {
	cfg        config.Pipeline
	store      *checkpoint.Store
	dispatcher *agent.Dispatcher
	gate       *approval.Gate
	logger     *slog.Logger
	grace      time.Duration

	db      *db.DB
	metrics *metrics.Metrics

	// OnStart, when set, receives the pipeline ID as soon as a run begins,
	// before any task dispatches. The CLI uses it to start the decision file
	// watcher for the right pipeline.
	OnStart func(pipelineID string)
}

// New creates an Engine. The config must already be validated.
func New(cfg config.Pipeline, store *checkpoint.Store, dispatcher *agent.Dispatcher, gate *approval.Gate, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	grace := defaultShutdownGrace
	if cfg.ShutdownGrace != "" {
		if d, err := time.ParseDuration(cfg.ShutdownGrace); err == nil {
			grace = d
		}
	}
	return &Engine{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		gate:       gate,
		logger:     logger,
		grace:      grace,
	}
}

// SetDB attaches the event log. Optional; logging is best effort.
func (e *Engine) SetDB(d *db.DB) {
	e.db = d
}

// SetMetrics attaches metrics collectors. Optional.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
	e.dispatcher.SetMetrics(m)
}

// Start builds a fresh pipeline for the objective and runs it to a terminal
// state. The returned error is reserved for infrastructure failures; domain
// failures land in the result.
func (e *Engine) Start(ctx context.Context, objective string, mode Mode) (*RunResult, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("unknown mode %q (valid: auto, semi, dry-run)", mode)
	}
	p := buildPipeline(e.cfg, objective, mode)
	e.logger.Info("pipeline started",
		"pipeline", p.ID, "mode", string(mode), "phases", len(p.Phases), "objective", objective)
	e.logEvent(p.ID, "started", "", objective)
	if e.OnStart != nil {
		e.OnStart(p.ID)
	}
	return e.run(ctx, p, false)
}

// Resume loads the referenced checkpoint (latest if the sequence is zero),
// rebuilds the pipeline, and continues from the first non-COMPLETED task.
func (e *Engine) Resume(ctx context.Context, ref checkpoint.Ref) (*RunResult, error) {
	cp, err := e.store.Load(ref)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, &InvalidResumeStateError{PipelineID: ref.PipelineID, Reason: "no checkpoint found"}
	}
	if st := PipelineStatus(cp.PipelineStatus); st.IsTerminal() {
		return nil, &InvalidResumeStateError{PipelineID: cp.PipelineID, Reason: fmt.Sprintf("pipeline is %s", st)}
	}
	if cp.Reason == checkpoint.ReasonRejected {
		return nil, &InvalidResumeStateError{PipelineID: cp.PipelineID, Reason: "approval was rejected"}
	}
	mode, err := ParseMode(cp.Mode)
	if err != nil {
		return nil, &InvalidResumeStateError{PipelineID: cp.PipelineID, Reason: err.Error()}
	}

	p := buildPipeline(e.cfg, cp.Objective, mode)
	p.ID = cp.PipelineID
	if err := p.applySnapshots(cp); err != nil {
		return nil, &InvalidResumeStateError{PipelineID: cp.PipelineID, Reason: err.Error()}
	}

	e.logger.Info("pipeline resumed",
		"pipeline", p.ID, "sequence", cp.Sequence, "reason", string(cp.Reason))
	e.logEvent(p.ID, "resumed", cp.PhaseName, fmt.Sprintf("sequence %d", cp.Sequence))
	if e.OnStart != nil {
		e.OnStart(p.ID)
	}

	// The interruption may have landed between a completed phase and the
	// gate, so no transition skips approval on the way back in.
	gateFirst := mode == ModeSemi && resumesAtPhaseBoundary(p)
	return e.run(ctx, p, gateFirst)
}

// resumesAtPhaseBoundary reports whether the next runnable phase is untouched
// and follows at least one completed phase.
func resumesAtPhaseBoundary(p *Pipeline) bool {
	seenCompleted := false
	for _, ph := range p.Phases {
		switch ph.Status {
		case PhaseCompleted:
			seenCompleted = true
		case PhaseSkipped:
		default:
			if !seenCompleted {
				return false
			}
			for _, t := range ph.Tasks {
				if t.Status == TaskCompleted {
					return false
				}
			}
			return true
		}
	}
	return false
}

func (e *Engine) run(ctx context.Context, p *Pipeline, gateFirst bool) (*RunResult, error) {
	e.dispatcher.SetSimulate(p.Mode == ModeDryRun)

	// When the run context is cancelled, in-flight tasks keep a detached
	// dispatch context for the grace window before being cut off.
	dispatchCtx, cancelDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDispatch()
	go func() {
		select {
		case <-dispatchCtx.Done():
			return
		case <-ctx.Done():
		}
		t := time.NewTimer(e.grace)
		defer t.Stop()
		select {
		case <-t.C:
			cancelDispatch()
		case <-dispatchCtx.Done():
		}
	}()

	lastSeq := 0
	completedSince := 0

	if gateFirst {
		if prev := lastCompletedPhase(p); prev != nil {
			if done, res, err := e.awaitGate(ctx, p, prev, &lastSeq); done {
				return res, err
			}
		}
	}

	last := lastEnabledIndex(p)
	for i, ph := range p.Phases {
		if ph.Status == PhaseCompleted || ph.Status == PhaseSkipped {
			continue
		}
		if !ph.Enabled {
			ph.Status = PhaseSkipped
			e.logger.Info("phase skipped", "pipeline", p.ID, "phase", ph.Name)
			e.logEvent(p.ID, "phase_skipped", ph.Name, "")
			continue
		}
		if ctx.Err() != nil {
			return e.interrupt(p, ph.Name, &lastSeq)
		}

		ph.Status = PhaseRunning
		e.logger.Info("phase started",
			"pipeline", p.ID, "phase", ph.Name, "tasks", len(ph.Tasks), "parallel", ph.Parallel)
		e.logEvent(p.ID, "phase_started", ph.Name, "")

		var failErr, err error
		if ph.Parallel {
			failErr, err = e.runParallel(ctx, dispatchCtx, p, ph, &lastSeq, &completedSince)
		} else {
			failErr, err = e.runSerial(ctx, dispatchCtx, p, ph, &lastSeq, &completedSince)
		}
		if err != nil {
			return nil, err
		}

		if failErr != nil {
			ph.Status = PhaseFailed
			p.Status = StatusFailed
			e.logEvent(p.ID, "phase_failed", ph.Name, failErr.Error())
			seq, err := e.saveCheckpoint(p, checkpoint.ReasonError, ph.Name)
			if err != nil {
				return nil, err
			}
			lastSeq = seq
			e.logger.Error("pipeline failed", "pipeline", p.ID, "phase", ph.Name, "error", failErr)
			return p.result(lastSeq, failErr), nil
		}
		if ctx.Err() != nil && !phaseDone(ph) {
			return e.interrupt(p, ph.Name, &lastSeq)
		}

		ph.Status = PhaseCompleted
		if i == last {
			p.Status = StatusCompleted
			now := time.Now().UTC()
			p.CompletedAt = &now
		}

		seq, err := e.saveCheckpoint(p, checkpoint.ReasonPhaseComplete, ph.Name)
		if err != nil {
			return nil, err
		}
		lastSeq = seq
		completedSince = 0
		e.logEvent(p.ID, "phase_completed", ph.Name, "")
		e.logger.Info("phase completed", "pipeline", p.ID, "phase", ph.Name, "sequence", seq)

		if p.Mode == ModeSemi && i != last {
			if done, res, err := e.awaitGate(ctx, p, ph, &lastSeq); done {
				return res, err
			}
		}
	}

	if p.Status != StatusCompleted {
		// every phase was skipped or already completed on resume
		p.Status = StatusCompleted
		now := time.Now().UTC()
		p.CompletedAt = &now
	}
	e.logger.Info("pipeline completed", "pipeline", p.ID, "checkpoint", lastSeq)
	e.logEvent(p.ID, "completed", "", "")
	return p.result(lastSeq, nil), nil
}

// runSerial dispatches tasks one at a time in template order. failErr is the
// exhausted error of the task that sank the phase; err reports a fatal
// checkpoint write failure.
func (e *Engine) runSerial(ctx, dispatchCtx context.Context, p *Pipeline, ph *Phase, lastSeq, completedSince *int) (failErr, err error) {
	for _, t := range ph.Tasks {
		if t.Status == TaskCompleted {
			continue
		}
		if ctx.Err() != nil {
			return nil, nil // caller takes the interrupt path
		}

		t.Status = TaskRunning
		start := time.Now()
		out := e.dispatchTask(dispatchCtx, p, ph, t)
		e.applyOutcome(p, t, out, time.Since(start))

		switch out.Status {
		case agent.OutcomeCompleted:
			*completedSince++
			if *completedSince >= e.cfg.CheckpointInterval && !phaseDone(ph) {
				seq, serr := e.saveCheckpoint(p, checkpoint.ReasonInterval, ph.Name)
				if serr != nil {
					return nil, serr
				}
				*lastSeq = seq
				*completedSince = 0
			}
		case agent.OutcomeFailed:
			return out.Err, nil
		case agent.OutcomeCancelled:
			return nil, nil
		}
	}
	return nil, nil
}

// runParallel dispatches the phase's remaining tasks under a bounded worker
// pool. Workers only read immutable task fields; every state mutation happens
// on this goroutine as outcomes drain, so snapshots stay consistent.
func (e *Engine) runParallel(ctx, dispatchCtx context.Context, p *Pipeline, ph *Phase, lastSeq, completedSince *int) (failErr, err error) {
	var pending []*Task
	for _, t := range ph.Tasks {
		if t.Status != TaskCompleted {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	workers := e.cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(pending) {
		workers = len(pending)
	}

	phaseCtx, cancelPhase := context.WithCancel(dispatchCtx)
	defer cancelPhase()

	workCh := make(chan *Task, len(pending))
	for _, t := range pending {
		t.Status = TaskRunning
		workCh <- t
	}
	close(workCh)

	type taskResult struct {
		task *Task
		out  agent.Outcome
		dur  time.Duration
	}
	outCh := make(chan taskResult)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range workCh {
				if ctx.Err() != nil {
					// stop picking up new work once shutdown begins
					outCh <- taskResult{task: t, out: agent.Outcome{Status: agent.OutcomeCancelled, Err: ctx.Err()}}
					continue
				}
				start := time.Now()
				out := e.dispatchTask(phaseCtx, p, ph, t)
				outCh <- taskResult{task: t, out: out, dur: time.Since(start)}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(outCh)
	}()

	for r := range outCh {
		e.applyOutcome(p, r.task, r.out, r.dur)
		switch r.out.Status {
		case agent.OutcomeCompleted:
			*completedSince++
			if err == nil && *completedSince >= e.cfg.CheckpointInterval && !phaseDone(ph) {
				seq, serr := e.saveCheckpoint(p, checkpoint.ReasonInterval, ph.Name)
				if serr != nil {
					err = serr
					cancelPhase()
				} else {
					*lastSeq = seq
					*completedSince = 0
				}
			}
		case agent.OutcomeFailed:
			if failErr == nil {
				failErr = r.out.Err
				cancelPhase()
			}
		}
	}
	return failErr, err
}

// dispatchTask renders the task template and hands the request to the
// dispatcher. A render failure is a configuration mistake, not a transient
// provider error, so it fails the task without retries.
func (e *Engine) dispatchTask(ctx context.Context, p *Pipeline, ph *Phase, t *Task) agent.Outcome {
	vars := prompt.Merge(p.Vars, prompt.Vars{"phase": ph.Name, "role": string(t.Role)})
	desc, err := prompt.Render(t.Description, vars)
	if err != nil {
		return agent.Outcome{Status: agent.OutcomeFailed, Err: fmt.Errorf("render task %s: %w", t.ID, err)}
	}
	req := agent.Request{
		TaskID:      t.ID,
		Phase:       ph.Name,
		Role:        t.Role,
		Description: desc,
		Vars:        map[string]string(vars),
	}
	return e.dispatcher.Dispatch(ctx, req, e.cfg.MaxRetries)
}

// applyOutcome folds a terminal dispatch outcome into the task record. A task
// cancelled before its first attempt goes back to PENDING; one cancelled
// mid-flight is marked FAILED so no task stays RUNNING past the run.
func (e *Engine) applyOutcome(p *Pipeline, t *Task, out agent.Outcome, dur time.Duration) {
	t.Attempts = out.Attempts
	switch out.Status {
	case agent.OutcomeCompleted:
		t.Status = TaskCompleted
		t.Result = out.Result.Output
		t.Error = ""
		e.logTask(p, t, "completed", "", dur)
	case agent.OutcomeFailed:
		t.Status = TaskFailed
		t.Error = out.Err.Error()
		e.logTask(p, t, "failed", t.Error, dur)
	case agent.OutcomeCancelled:
		if out.Attempts == 0 {
			t.Status = TaskPending
			return
		}
		t.Status = TaskFailed
		t.Error = "cancelled"
		e.logTask(p, t, "cancelled", t.Error, dur)
	}
}

// awaitGate blocks the transition out of ph until a decision arrives. done
// is true when the run ends here (rejection, interrupt, or a fatal
// checkpoint error).
func (e *Engine) awaitGate(ctx context.Context, p *Pipeline, ph *Phase, lastSeq *int) (done bool, res *RunResult, err error) {
	ph.Status = PhaseAwaitingApproval
	e.logger.Info("awaiting approval", "pipeline", p.ID, "phase", ph.Name)
	e.logEvent(p.ID, "awaiting_approval", ph.Name, "")

	d, err := e.gate.Await(ctx)
	if err != nil {
		ph.Status = PhaseCompleted
		res, ierr := e.interrupt(p, ph.Name, lastSeq)
		return true, res, ierr
	}

	ph.Status = PhaseCompleted
	e.metrics.ObserveApproval(string(d.Outcome))
	if e.db != nil {
		_ = e.db.LogApprovalEvent(p.ID, ph.Name, string(d.Outcome), d.Note)
	}

	switch d.Outcome {
	case approval.OutcomeReject:
		p.Status = StatusAborted
		seq, err := e.saveCheckpoint(p, checkpoint.ReasonRejected, ph.Name)
		if err != nil {
			return true, nil, err
		}
		*lastSeq = seq
		e.logger.Info("pipeline aborted", "pipeline", p.ID, "phase", ph.Name, "note", d.Note)
		e.logEvent(p.ID, "aborted", ph.Name, d.Note)
		return true, p.result(*lastSeq, approval.ErrRejected), nil
	case approval.OutcomeModify:
		p.Vars = prompt.Merge(p.Vars, prompt.Vars(d.Payload))
		e.logger.Info("approval modified payload", "pipeline", p.ID, "phase", ph.Name, "vars", len(d.Payload))
	}
	return false, nil, nil
}

// interrupt writes the forced shutdown checkpoint through the normal atomic
// save path and ends the run as INTERRUPTED.
func (e *Engine) interrupt(p *Pipeline, phaseName string, lastSeq *int) (*RunResult, error) {
	p.Status = StatusInterrupted
	seq, err := e.saveCheckpoint(p, checkpoint.ReasonInterrupted, phaseName)
	if err != nil {
		return nil, err
	}
	*lastSeq = seq
	e.logger.Warn("pipeline interrupted", "pipeline", p.ID, "phase", phaseName, "sequence", seq)
	e.logEvent(p.ID, "interrupted", phaseName, "")
	return p.result(*lastSeq, nil), nil
}

func (e *Engine) saveCheckpoint(p *Pipeline, reason checkpoint.Reason, phaseName string) (int, error) {
	cp := p.snapshot(reason, phaseName)
	if err := e.store.Save(cp); err != nil {
		e.logger.Error("checkpoint write failed", "pipeline", p.ID, "reason", string(reason), "error", err)
		return 0, &CheckpointWriteError{PipelineID: p.ID, Err: err}
	}
	e.metrics.ObserveCheckpoint(string(reason))
	return cp.Sequence, nil
}

func phaseDone(ph *Phase) bool {
	for _, t := range ph.Tasks {
		if t.Status != TaskCompleted {
			return false
		}
	}
	return true
}

func lastEnabledIndex(p *Pipeline) int {
	last := -1
	for i, ph := range p.Phases {
		if ph.Enabled {
			last = i
		}
	}
	return last
}

func lastCompletedPhase(p *Pipeline) *Phase {
	var prev *Phase
	for _, ph := range p.Phases {
		if ph.Status == PhaseCompleted {
			prev = ph
		}
	}
	return prev
}

func (e *Engine) logEvent(pipelineID, event, phase, detail string) {
	if e.db == nil {
		return
	}
	_ = e.db.LogPipelineEvent(pipelineID, event, phase, detail)
}

func (e *Engine) logTask(p *Pipeline, t *Task, outcome, errMsg string, dur time.Duration) {
	if e.db == nil {
		return
	}
	_ = e.db.LogTaskAttempt(p.ID, t.ID, t.PhaseName, string(t.Role), t.Attempts, outcome, errMsg, int(dur.Milliseconds()))
}
