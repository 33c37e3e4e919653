// Package checkpoint persists immutable pipeline snapshots. Checkpoints are
// written atomically, one JSON document per snapshot, with a monotonic
// per-pipeline sequence. The store only appends; retention is an external
// concern.
package checkpoint

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const checkpointsDirName = "checkpoints"

// Store manages checkpoint files on disk.
type Store struct {
	baseDir string
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-pipeline write serialization
	seqs  map[string]int         // last assigned sequence per pipeline
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		baseDir: baseDir,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
		seqs:    make(map[string]int),
	}
}

// DefaultStore returns a Store at ~/.bmadflow/pipelines, creating the
// directory if needed.
func DefaultStore(logger *slog.Logger) (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".bmadflow", "pipelines")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return NewStore(dir, logger), nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// pipelineDir returns the directory for a pipeline's checkpoints.
func (s *Store) pipelineDir(pipelineID string) string {
	return filepath.Join(s.baseDir, pipelineID, checkpointsDirName)
}

// checkpointPath returns the file path for a checkpoint sequence.
func (s *Store) checkpointPath(pipelineID string, seq int) string {
	return filepath.Join(s.pipelineDir(pipelineID), fmt.Sprintf("checkpoint-%06d.json", seq))
}

// lockFor returns the write mutex for a pipeline, creating one if needed.
func (s *Store) lockFor(pipelineID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[pipelineID] == nil {
		s.locks[pipelineID] = &sync.Mutex{}
	}
	return s.locks[pipelineID]
}

// Save assigns the next monotonic sequence for the checkpoint's pipeline and
// writes it atomically. Concurrent saves for the same pipeline queue on a
// per-pipeline lock, so sequences never collide. The checkpoint's Sequence
// and Timestamp fields are set by the store.
func (s *Store) Save(cp *Checkpoint) error {
	if cp.PipelineID == "" {
		return fmt.Errorf("checkpoint has no pipeline id")
	}
	if !cp.Reason.IsValid() {
		return fmt.Errorf("invalid checkpoint reason %q", cp.Reason)
	}

	lock := s.lockFor(cp.PipelineID)
	lock.Lock()
	defer lock.Unlock()

	seq, err := s.nextSequence(cp.PipelineID)
	if err != nil {
		return err
	}
	cp.Sequence = seq
	cp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	path := s.checkpointPath(cp.PipelineID, seq)
	if err := WriteJSON(path, cp); err != nil {
		return fmt.Errorf("write checkpoint %d for pipeline %s: %w", seq, cp.PipelineID, err)
	}

	s.mu.Lock()
	s.seqs[cp.PipelineID] = seq
	s.mu.Unlock()

	s.logger.Debug("checkpoint saved",
		"pipeline", cp.PipelineID, "sequence", seq, "reason", string(cp.Reason), "phase", cp.PhaseName)
	return nil
}

// nextSequence returns the next unused sequence for a pipeline. The first scan
// walks the directory; later calls use the cached counter. Caller must hold
// the pipeline lock.
func (s *Store) nextSequence(pipelineID string) (int, error) {
	s.mu.Lock()
	last, known := s.seqs[pipelineID]
	s.mu.Unlock()
	if known {
		return last + 1, nil
	}

	seqs, err := s.scanSequences(pipelineID)
	if err != nil {
		return 0, err
	}
	if len(seqs) == 0 {
		return 1, nil
	}
	return seqs[len(seqs)-1] + 1, nil
}

// scanSequences lists the on-disk checkpoint sequences for a pipeline in
// ascending order. Temp files and unparseable names are ignored.
func (s *Store) scanSequences(pipelineID string) ([]int, error) {
	entries, err := os.ReadDir(s.pipelineDir(pipelineID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint dir for %s: %w", pipelineID, err)
	}

	var seqs []int
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "checkpoint-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(name, "checkpoint-"), ".json")
		seq, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	return seqs, nil
}

// LoadLatest returns the highest-sequence checkpoint for a pipeline, or nil
// if none exist.
func (s *Store) LoadLatest(pipelineID string) (*Checkpoint, error) {
	seqs, err := s.scanSequences(pipelineID)
	if err != nil {
		return nil, err
	}
	if len(seqs) == 0 {
		return nil, nil
	}
	return s.LoadBySequence(pipelineID, seqs[len(seqs)-1])
}

// LoadBySequence returns the checkpoint with the given sequence, or nil if it
// does not exist.
func (s *Store) LoadBySequence(pipelineID string, seq int) (*Checkpoint, error) {
	var cp Checkpoint
	if err := ReadJSON(s.checkpointPath(pipelineID, seq), &cp); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint %d for pipeline %s: %w", seq, pipelineID, err)
	}
	return &cp, nil
}

// Load resolves a Ref: a zero sequence means latest.
func (s *Store) Load(ref Ref) (*Checkpoint, error) {
	if ref.Sequence > 0 {
		return s.LoadBySequence(ref.PipelineID, ref.Sequence)
	}
	return s.LoadLatest(ref.PipelineID)
}

// List returns all checkpoints for a pipeline in ascending sequence order.
func (s *Store) List(pipelineID string) ([]Checkpoint, error) {
	seqs, err := s.scanSequences(pipelineID)
	if err != nil {
		return nil, err
	}

	var cps []Checkpoint
	for _, seq := range seqs {
		cp, err := s.LoadBySequence(pipelineID, seq)
		if err != nil || cp == nil {
			continue // skip broken entries
		}
		cps = append(cps, *cp)
	}
	return cps, nil
}

// ListPipelines returns the IDs of all pipelines with at least one checkpoint.
func (s *Store) ListPipelines() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		seqs, err := s.scanSequences(entry.Name())
		if err != nil || len(seqs) == 0 {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}
