// Package store persists run checkpoints and event traces.
package store

// Store defines the interface for checkpoint persistence operations.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a checkpoint doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveCheckpoint atomically stores cp as the run's latest checkpoint and
	// as the copy addressed by cp.Iteration.
	SaveCheckpoint(runID string, cp *Checkpoint) error

	// LoadCheckpoint retrieves the latest checkpoint of a run.
	LoadCheckpoint(runID string) (*Checkpoint, error)

	// LoadCheckpointAt retrieves the checkpoint saved at iteration.
	LoadCheckpointAt(runID string, iteration int) (*Checkpoint, error)

	// ListCheckpoints returns the latest checkpoint of every run.
	ListCheckpoints() ([]CheckpointInfo, error)

	// ListIterations returns the iterations with a stored copy, ascending.
	ListIterations(runID string) ([]int, error)

	// PruneHistory keeps the newest keep iteration copies of a run.
	// keep <= 0 keeps everything.
	PruneHistory(runID string, keep int) error

	// DeleteCheckpoint removes the run and all its artifacts.
	DeleteCheckpoint(runID string) error

	Close() error
}

// ErrNotFound is returned when a requested checkpoint does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing checkpoint error.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "checkpoint not found: " + e.RunID
	}
	return "checkpoint not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

func prune(iterations []int, keep int) []int {
	if keep <= 0 || len(iterations) <= keep {
		return nil
	}
	return iterations[:len(iterations)-keep]
}
