package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/acuy-d/bmadflow/internal/agent"
	"github.com/acuy-d/bmadflow/internal/approval"
	"github.com/acuy-d/bmadflow/internal/checkpoint"
	"github.com/acuy-d/bmadflow/internal/config"
	"github.com/acuy-d/bmadflow/internal/db"
	"github.com/acuy-d/bmadflow/internal/engine"
	"github.com/acuy-d/bmadflow/internal/metrics"
	"github.com/acuy-d/bmadflow/internal/retry"
	"github.com/acuy-d/bmadflow/internal/shutdown"
)

// runtime is the composition root for run and resume: every collaborator the
// engine needs, built from flags and config.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *checkpoint.Store
	db     *db.DB
	gate   *approval.Gate
	eng    *engine.Engine
	coord  *shutdown.Coordinator

	approvalsDir string
	watcher      *approval.Watcher
	metricsSrv   *http.Server
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func stateRoot() (string, error) {
	if stateDir != "" {
		return stateDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".bmadflow"), nil
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

func newRuntime() (*runtime, error) {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("invalid config", "field", e.Field, "message", e.Message)
		}
		return nil, fmt.Errorf("config has %d validation error(s)", len(errs))
	}

	root, err := stateRoot()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", root, err)
	}

	store := checkpoint.NewStore(filepath.Join(root, "pipelines"), logger)

	database, err := db.Open(filepath.Join(root, "bmadflow.db"))
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, err
	}

	timeout, err := time.ParseDuration(cfg.Pipeline.TaskTimeout)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("parse task_timeout: %w", err)
	}

	var invoker agent.Invoker
	if agentCmd != "" {
		invoker = agent.NewCommandInvoker(agentCmd)
	} else {
		logger.Warn("no --agent-cmd given, using the built-in simulator")
		invoker = agent.NewSimulator()
	}
	dispatcher := agent.NewDispatcher(invoker, retry.NewPolicy(), timeout, logger)

	gate := approval.NewGate()
	eng := engine.New(cfg.Pipeline, store, dispatcher, gate, logger)
	eng.SetDB(database)

	rt := &runtime{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		db:           database,
		gate:         gate,
		eng:          eng,
		coord:        shutdown.New(logger),
		approvalsDir: filepath.Join(root, "approvals"),
	}

	if metricsAddr != "" {
		m := metrics.New()
		eng.SetMetrics(m)
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		rt.metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := rt.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	// As soon as the run assigns its pipeline ID, start consuming decision
	// files addressed to it.
	eng.OnStart = func(pipelineID string) {
		w := approval.NewWatcher(rt.approvalsDir, pipelineID, gate, logger)
		if err := w.Start(); err != nil {
			logger.Warn("approval watcher not started", "error", err)
			return
		}
		rt.watcher = w
		logger.Info("watching for approval decisions",
			"path", approval.DecisionPath(rt.approvalsDir, pipelineID))
	}

	return rt, nil
}

func (rt *runtime) Close() {
	if rt.watcher != nil {
		_ = rt.watcher.Close()
	}
	if rt.metricsSrv != nil {
		_ = rt.metricsSrv.Close()
	}
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

// printResult writes the run summary and returns a non-nil error when the
// pipeline did not complete, so the process exits non-zero.
func printResult(res *engine.RunResult, out func(format string, a ...any)) error {
	out("pipeline:   %s\n", res.PipelineID)
	out("status:     %s\n", res.FinalStatus)
	if res.LastCheckpoint > 0 {
		out("checkpoint: %d\n", res.LastCheckpoint)
	}
	for _, ph := range res.Phases {
		out("  %-16s %-18s %d task(s)\n", ph.Name, ph.Status, ph.Tasks)
	}
	if res.Success {
		return nil
	}
	if res.Err != nil {
		return fmt.Errorf("pipeline %s ended %s: %v", res.PipelineID, res.FinalStatus, res.Err)
	}
	return fmt.Errorf("pipeline %s ended %s", res.PipelineID, res.FinalStatus)
}
