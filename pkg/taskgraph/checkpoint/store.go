// Package checkpoint persists the (next node, state) pair of workflow runs
// so that suspended or interrupted runs can be resumed.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store persists checkpoints.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a checkpoint under (RunID, Sequence).
	// Overwrites if that sequence already exists for the run.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load retrieves a specific checkpoint.
	// Returns ErrNotFound if it doesn't exist.
	Load(ctx context.Context, runID string, sequence int) (*Checkpoint, error)

	// Latest retrieves the checkpoint with the highest sequence for a run.
	// Returns ErrNotFound if the run has no checkpoints.
	Latest(ctx context.Context, runID string) (*Checkpoint, error)

	// List returns all checkpoints for a run, ordered by sequence.
	// Returns empty slice (not error) if run has no checkpoints.
	List(ctx context.Context, runID string) ([]Info, error)

	// DeleteRun removes all checkpoints for a run.
	// Returns nil if run has no checkpoints.
	DeleteRun(ctx context.Context, runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading full state.
type Info struct {
	RunID     string
	NodeID    string
	NextNode  string
	Status    string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrInvalidCheckpoint indicates a checkpoint without a run ID or sequence.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
)

func validate(cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("%w: nil", ErrInvalidCheckpoint)
	}
	if cp.RunID == "" {
		return fmt.Errorf("%w: empty run ID", ErrInvalidCheckpoint)
	}
	if cp.Sequence <= 0 {
		return fmt.Errorf("%w: sequence must be positive, got %d", ErrInvalidCheckpoint, cp.Sequence)
	}
	return nil
}
