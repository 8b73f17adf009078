package taskgraph

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph/checkpoint"
)

// Suspension is the (node, state) pair a suspended run resumes from.
type Suspension struct {
	// RunID identifies the suspended run. Optional.
	RunID string
	// Node is executed first on resume. END resumes straight to termination.
	Node string
	// State is the state at suspension.
	State State
}

// Resume continues a suspended run.
//
// updates are merged into the suspended state with the usual field
// strategies before the suspension node executes. An update the schema
// rejects fails with a *ConfigurationError and nothing runs.
//
// Interrupt-before options do not re-trigger for the suspension node itself.
//
// Example:
//
//	result, _ := compiled.Run(ctx, inputs, taskgraph.WithInterruptBefore("deploy"))
//	if result.Status == taskgraph.StatusSuspended {
//	    result, err = compiled.Resume(ctx, result.Suspension(),
//	        map[string]any{"approved": true})
//	}
func (cg *CompiledGraph) Resume(ctx Context, s Suspension, updates map[string]any, opts ...RunOption) (Result, error) {
	if ctx == nil {
		return Result{Status: StatusFailed}, ErrNilContext
	}

	if s.RunID != "" {
		opts = append([]RunOption{WithRunID(s.RunID)}, opts...)
	}
	cfg := cg.configure(ctx, opts)

	if cfg.checkpointStore != nil {
		latest, err := cfg.checkpointStore.Latest(ctx, cfg.runID)
		switch {
		case err == nil:
			cfg.sequence = latest.Sequence
		case !errors.Is(err, checkpoint.ErrNotFound):
			return Result{Status: StatusFailed, Node: s.Node, State: s.State, RunID: cfg.runID},
				fmt.Errorf("load checkpoint: %w", err)
		}
	}

	return cg.resume(ctx, s, updates, &cfg)
}

// ResumeFromCheckpoint continues a run from its most recent checkpoint in
// store. Execution starts at the checkpoint's next node, which is the
// suspension node for suspended runs.
//
// Example:
//
//	// Process restarted after the run suspended at "approve"
//	result, err := compiled.ResumeFromCheckpoint(ctx, store, "run-123",
//	    map[string]any{"approved": true})
func (cg *CompiledGraph) ResumeFromCheckpoint(ctx Context, store checkpoint.Store, runID string, updates map[string]any, opts ...RunOption) (Result, error) {
	if ctx == nil {
		return Result{Status: StatusFailed}, ErrNilContext
	}

	cp, err := store.Latest(ctx, runID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return Result{Status: StatusFailed, RunID: runID}, fmt.Errorf("%w: %s", ErrNoCheckpoints, runID)
		}
		return Result{Status: StatusFailed, RunID: runID}, fmt.Errorf("load checkpoint: %w", err)
	}

	return cg.resumeCheckpoint(ctx, store, cp, updates, opts)
}

// ResumeFromSequence continues a run from a specific checkpoint rather than
// the latest one, replaying everything after it. Later checkpoints are
// overwritten as the run proceeds.
func (cg *CompiledGraph) ResumeFromSequence(ctx Context, store checkpoint.Store, runID string, sequence int, updates map[string]any, opts ...RunOption) (Result, error) {
	if ctx == nil {
		return Result{Status: StatusFailed}, ErrNilContext
	}

	cp, err := store.Load(ctx, runID, sequence)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return Result{Status: StatusFailed, RunID: runID},
				fmt.Errorf("%w: %s at sequence %d", ErrNoCheckpoints, runID, sequence)
		}
		return Result{Status: StatusFailed, RunID: runID}, fmt.Errorf("load checkpoint: %w", err)
	}

	return cg.resumeCheckpoint(ctx, store, cp, updates, opts)
}

func (cg *CompiledGraph) resumeCheckpoint(ctx Context, store checkpoint.Store, cp *checkpoint.Checkpoint, updates map[string]any, opts []RunOption) (Result, error) {
	failed := Result{Status: StatusFailed, RunID: cp.RunID, Node: cp.NextNode}

	if cp.Version != checkpoint.Version {
		return failed, fmt.Errorf("%w: got %d, expected %d",
			ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version)
	}

	var values map[string]any
	if err := json.Unmarshal(cp.State, &values); err != nil {
		return failed, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}
	state, err := cg.schema.Restore(values)
	if err != nil {
		return failed, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	opts = append([]RunOption{WithCheckpointStore(store), WithRunID(cp.RunID)}, opts...)
	cfg := cg.configure(ctx, opts)
	cfg.sequence = cp.Sequence

	return cg.resume(ctx, Suspension{RunID: cp.RunID, Node: cp.NextNode, State: state}, updates, &cfg)
}

func (cg *CompiledGraph) resume(ctx Context, s Suspension, updates map[string]any, cfg *runConfig) (Result, error) {
	failed := Result{Status: StatusFailed, Node: s.Node, State: s.State, RunID: cfg.runID}

	if s.Node != END && !cg.HasNode(s.Node) {
		return failed, fmt.Errorf("%w: %s", ErrInvalidResumeNode, s.Node)
	}

	state, err := cg.adopt(s.State)
	if err != nil {
		return failed, err
	}

	state, err = cg.applyUpdates(state, updates)
	if err != nil {
		return failed, err
	}

	return cg.invoke(ctx, state, s.Node, cfg, true)
}

// adopt binds a state produced elsewhere (another process, a decoded
// payload, the zero State) to this graph's schema.
func (cg *CompiledGraph) adopt(state State) (State, error) {
	if state.schema == cg.schema {
		return state, nil
	}
	return cg.schema.Restore(state.Snapshot())
}

// applyUpdates merges resume updates, reporting rejections as configuration
// errors since they come from the caller rather than a node.
func (cg *CompiledGraph) applyUpdates(state State, updates map[string]any) (State, error) {
	if len(updates) == 0 {
		return state, nil
	}
	merged, err := cg.schema.Merge(state, Delta(updates))
	if err != nil {
		var sv *SchemaViolationError
		if errors.As(err, &sv) {
			return state, &ConfigurationError{Field: sv.Field, Reason: sv.Reason}
		}
		return state, err
	}
	return merged, nil
}
