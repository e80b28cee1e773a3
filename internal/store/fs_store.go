package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FSStore implements Store on the filesystem:
//
//	<baseDir>/runs/<runID>/checkpoint.json
//	<baseDir>/runs/<runID>/history/iter-000000020.json
//	<baseDir>/runs/<runID>/events.jsonl
//
// Writes go to a temp file that is renamed into place, so readers never
// see a partial document.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory.
func (fs *FSStore) BaseDir() string { return fs.baseDir }

// RunDir returns the directory holding a run's artifacts.
func (fs *FSStore) RunDir(runID string) string {
	return RunDir(fs.baseDir, runID)
}

// RunDir returns the directory holding a run's artifacts under baseDir.
func RunDir(baseDir, runID string) string {
	return filepath.Join(baseDir, "runs", runID)
}

func (fs *FSStore) checkpointPath(runID string) string {
	return filepath.Join(fs.RunDir(runID), "checkpoint.json")
}

// Location returns the path of a run's latest checkpoint.
func (fs *FSStore) Location(runID string) string {
	return fs.checkpointPath(runID)
}

func (fs *FSStore) historyDir(runID string) string {
	return filepath.Join(fs.RunDir(runID), "history")
}

func (fs *FSStore) historyPath(runID string, iteration int) string {
	return filepath.Join(fs.historyDir(runID), fmt.Sprintf("iter-%09d.json", iteration))
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}
	return nil
}

// SaveCheckpoint writes the history copy first, then the latest pointer.
func (fs *FSStore) SaveCheckpoint(runID string, cp *Checkpoint) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if cp == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}
	if err := writeAtomic(fs.historyPath(runID, cp.Iteration), data); err != nil {
		return err
	}
	if err := writeAtomic(fs.checkpointPath(runID), data); err != nil {
		return err
	}
	slog.Debug("Checkpoint saved", "run_id", runID, "iteration", cp.Iteration, "path", fs.checkpointPath(runID))
	return nil
}

func (fs *FSStore) load(runID, path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}
	return &cp, nil
}

func (fs *FSStore) LoadCheckpoint(runID string) (*Checkpoint, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	return fs.load(runID, fs.checkpointPath(runID))
}

func (fs *FSStore) LoadCheckpointAt(runID string, iteration int) (*Checkpoint, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	return fs.load(runID, fs.historyPath(runID, iteration))
}

func (fs *FSStore) ListIterations(runID string) ([]int, error) {
	entries, err := os.ReadDir(fs.historyDir(runID))
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}
	var iterations []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "iter-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "iter-"), ".json"))
		if err != nil {
			continue
		}
		iterations = append(iterations, n)
	}
	sort.Ints(iterations)
	return iterations, nil
}

func (fs *FSStore) PruneHistory(runID string, keep int) error {
	iterations, err := fs.ListIterations(runID)
	if err != nil {
		return err
	}
	for _, it := range prune(iterations, keep) {
		if err := os.Remove(fs.historyPath(runID, it)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove checkpoint %d: %w", it, err)
		}
	}
	return nil
}

// ListCheckpoints skips runs whose latest checkpoint cannot be read.
func (fs *FSStore) ListCheckpoints() ([]CheckpointInfo, error) {
	runsDir := filepath.Join(fs.baseDir, "runs")
	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		return []CheckpointInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []CheckpointInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runID := entry.Name()
		cp, err := fs.LoadCheckpoint(runID)
		if err != nil {
			if _, ok := err.(*NotFoundError); !ok {
				slog.Warn("Failed to load checkpoint for listing", "run_id", runID, "error", err)
			}
			continue
		}
		info := cp.ToInfo()
		info.Size = dirSize(fs.RunDir(runID))
		iterations, _ := fs.ListIterations(runID)
		info.History = len(iterations)
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SavedAt.After(infos[j].SavedAt) })
	slog.Debug("Listed checkpoints", "count", len(infos))
	return infos, nil
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// DeleteCheckpoint removes the run directory, history and trace included.
func (fs *FSStore) DeleteCheckpoint(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	dir := fs.RunDir(runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}
	slog.Debug("Checkpoint deleted", "run_id", runID, "path", dir)
	return nil
}

func (fs *FSStore) Close() error { return nil }
