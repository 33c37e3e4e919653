package approval

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/acuy-d/bmadflow/internal/checkpoint"
)

// defaultPollInterval bounds how long an undelivered decision file waits for
// redelivery when no further filesystem events arrive for it.
const defaultPollInterval = 500 * time.Millisecond

// DecisionPath returns the decision file location for a pipeline.
func DecisionPath(dir, pipelineID string) string {
	return filepath.Join(dir, pipelineID+".json")
}

// WriteDecision writes a decision file for a pipeline atomically. The CLI
// uses this; a running Watcher picks the file up and feeds the gate.
func WriteDecision(dir, pipelineID string, d Decision) error {
	if !d.Outcome.IsValid() {
		return fmt.Errorf("invalid approval outcome %q", d.Outcome)
	}
	return checkpoint.WriteJSON(DecisionPath(dir, pipelineID), &d)
}

// Watcher feeds decision files into a Gate. Each pipeline watches for its own
// <pipelineID>.json in the approvals directory; the file is consumed
// (removed) once delivered.
type Watcher struct {
	dir        string
	pipelineID string
	gate       *Gate
	logger     *slog.Logger
	poll       time.Duration

	fw   *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher creates a watcher for one pipeline's decision file.
func NewWatcher(dir, pipelineID string, gate *Gate, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, pipelineID: pipelineID, gate: gate, logger: logger, poll: defaultPollInterval}
}

// Start begins watching. A decision file that already exists is delivered
// immediately, so approving before the pipeline reaches the gate works.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.fw = fw
	w.done = make(chan struct{})

	// Catch a decision written before the watch began.
	w.tryConsume()

	go w.loop()
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	if w.fw == nil {
		return nil
	}
	err := w.fw.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	target := DecisionPath(w.dir, w.pipelineID)

	// The ticker retries a file whose delivery failed earlier, for example
	// because the gate already held an undelivered decision. Filesystem
	// events alone would leave such a file stranded until the next write.
	tick := time.NewTicker(w.poll)
	defer tick.Stop()

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Name != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.tryConsume()
		case <-tick.C:
			w.tryConsume()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("approval watcher error", "error", err)
		}
	}
}

// tryConsume reads, delivers, and removes the decision file. Unreadable or
// invalid files are left in place and logged; the author can correct them.
func (w *Watcher) tryConsume() {
	path := DecisionPath(w.dir, w.pipelineID)

	var d Decision
	if err := checkpoint.ReadJSON(path, &d); err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("unreadable decision file", "path", path, "error", err)
		}
		return
	}
	if !d.Outcome.IsValid() {
		w.logger.Warn("decision file has invalid outcome", "path", path, "outcome", string(d.Outcome))
		return
	}

	if err := w.gate.Decide(d); err != nil {
		w.logger.Warn("decision not delivered", "path", path, "error", err)
		return
	}
	if err := os.Remove(path); err != nil {
		w.logger.Warn("remove consumed decision file", "path", path, "error", err)
	}
	w.logger.Info("approval decision received", "pipeline", w.pipelineID, "outcome", string(d.Outcome))
}
