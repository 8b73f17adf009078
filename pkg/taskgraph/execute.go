package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph/checkpoint"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Status is the final state of an invocation.
type Status int

const (
	// StatusTerminated means the run reached END.
	StatusTerminated Status = iota + 1
	// StatusFailed means the run stopped on an error.
	StatusFailed
	// StatusSuspended means the run paused for external input and can be resumed.
	StatusSuspended
	// StatusCancelled means the caller cancelled the run.
	StatusCancelled
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case StatusTerminated:
		return "terminated"
	case StatusFailed:
		return "failed"
	case StatusSuspended:
		return "suspended"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result describes how an invocation ended.
type Result struct {
	// Status is the final status.
	Status Status
	// State is the state after the last successful merge.
	State State
	// Node is the suspension point, or the node where the run failed or was
	// cancelled. Empty when the run terminated.
	Node string
	// Reason is the suspension reason.
	Reason string
	// Steps is the number of node invocations in this call.
	Steps int
	// Path lists the invoked nodes in order.
	Path []string
	// RunID identifies the run in logs, spans and checkpoints.
	RunID string
}

// Suspension returns the pair needed to resume a suspended run.
func (r Result) Suspension() Suspension {
	return Suspension{RunID: r.RunID, Node: r.Node, State: r.State}
}

// Run executes the graph from its entry point.
//
// inputs override field defaults; unknown fields or values of the wrong
// kind fail with a *ConfigurationError before any node runs.
//
// The returned Result is always populated. On error, Result.State holds the
// state after the last successful merge and Result.Node names the node
// where execution stopped.
//
// Execution flow:
//  1. Start at the entry point node
//  2. Stop if the step cap is reached or the context is cancelled
//  3. Execute the current node and merge its delta
//  4. Determine the next node (fixed edge, router, or implicit END)
//  5. Repeat until END is reached, the run suspends, or an error occurs
//
// Example:
//
//	ctx := taskgraph.NewContext(context.Background())
//	result, err := compiled.Run(ctx, map[string]any{"query": "go generics"})
//	if err != nil {
//	    // result.State contains state at point of failure
//	}
func (cg *CompiledGraph) Run(ctx Context, inputs map[string]any, opts ...RunOption) (Result, error) {
	if ctx == nil {
		return Result{Status: StatusFailed}, ErrNilContext
	}

	cfg := cg.configure(ctx, opts)

	state, err := cg.schema.Initialize(inputs)
	if err != nil {
		return Result{Status: StatusFailed, Node: cg.entryPoint, RunID: cfg.runID}, err
	}

	return cg.invoke(ctx, state, cg.entryPoint, &cfg, false)
}

func (cg *CompiledGraph) configure(ctx Context, opts []RunOption) runConfig {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = ctx.RunID()
	}
	return cfg
}

func loggerOf(ctx Context) *slog.Logger {
	if l := ctx.Logger(); l != nil {
		return l
	}
	return slog.Default()
}

// invoke wraps the execution loop with run-level logging, tracing and metrics.
func (cg *CompiledGraph) invoke(ctx Context, state State, start string, cfg *runConfig, resumed bool) (Result, error) {
	logger := loggerOf(ctx)
	elapsed := observability.TimedOperation()

	observability.LogRunStart(logger, cfg.runID, start, resumed)

	var tracingCtx context.Context = ctx
	var runSpan trace.Span
	if cfg.tracingEnabled {
		tracingCtx, runSpan = cfg.spans.StartRunSpan(ctx, cfg.runID, start)
	}

	result, err := cg.loop(tracingCtx, ctx, state, start, cfg, resumed)

	if cfg.tracingEnabled {
		cfg.spans.EndSpanWithError(runSpan, err)
	}

	duration := elapsed()
	cfg.metrics.RecordRun(ctx, result.Status.String(), duration)

	if err != nil {
		observability.LogRunError(logger, cfg.runID, err, observability.Millis(duration), result.Node)
	} else {
		observability.LogRunComplete(logger, cfg.runID, result.Status.String(), observability.Millis(duration), result.Steps)
	}

	return result, err
}

// loop is the executor state machine.
// tracingCtx carries span context; ctx is the caller's Context.
// When resumed is true the interrupt-before check is skipped for the first
// node, since the run was suspended right before it.
func (cg *CompiledGraph) loop(tracingCtx context.Context, ctx Context, state State, start string, cfg *runConfig, resumed bool) (Result, error) {
	logger := loggerOf(ctx)
	res := Result{State: state, RunID: cfg.runID}
	current := start
	prev := ""
	skipInterrupt := resumed

	for {
		res.Node = current

		if current == END {
			res.Status = StatusTerminated
			res.Node = ""
			return res, nil
		}

		if res.Steps >= cfg.maxSteps {
			res.Status = StatusFailed
			return res, &MaxIterationsError{Max: cfg.maxSteps, LastNodeID: current}
		}

		if cause := ctx.Err(); cause != nil {
			res.Status = StatusCancelled
			return res, &CancellationError{NodeID: current, Cause: cause}
		}

		if cfg.interruptBefore[current] && !skipInterrupt {
			return cg.suspend(ctx, cfg, logger, res, prev, "interrupt before "+current)
		}
		skipInterrupt = false

		step := res.Steps + 1
		observability.LogNodeStart(logger, current, step)

		nodeTracingCtx := tracingCtx
		var nodeSpan trace.Span
		if cfg.tracingEnabled {
			nodeTracingCtx, nodeSpan = cfg.spans.StartNodeSpan(tracingCtx, current, step)
		}

		elapsed := observability.TimedOperation()
		delta, nodeErr := cg.executeNode(ctx, nodeTracingCtx, cfg.runID, current, state)
		duration := elapsed()

		res.Steps = step
		res.Path = append(res.Path, current)

		var interrupt *InterruptError
		if errors.As(nodeErr, &interrupt) {
			cfg.metrics.RecordNodeExecution(nodeTracingCtx, current, duration, nil)
			if cfg.tracingEnabled {
				cfg.spans.EndSpanWithError(nodeSpan, nil)
			}
			return cg.suspend(ctx, cfg, logger, res, prev, interrupt.Reason)
		}

		if nodeErr == nil {
			merged, err := cg.schema.Merge(state, delta)
			if err != nil {
				var sv *SchemaViolationError
				if errors.As(err, &sv) {
					sv.NodeID = current
				}
				nodeErr = err
			} else {
				state = merged
				res.State = state
			}
		}

		cfg.metrics.RecordNodeExecution(nodeTracingCtx, current, duration, nodeErr)
		if cfg.tracingEnabled {
			cfg.spans.EndSpanWithError(nodeSpan, nodeErr)
		}

		if nodeErr != nil {
			if cause := ctx.Err(); cause != nil && errors.Is(nodeErr, cause) {
				res.Status = StatusCancelled
				return res, &CancellationError{NodeID: current, Cause: cause, WasExecuting: true}
			}

			target, recoverable := cg.errorEdges[current]
			if !recoverable || errors.Is(nodeErr, ErrSchemaViolation) {
				observability.LogNodeError(logger, current, nodeErr)
				res.Status = StatusFailed
				return res, nodeErr
			}

			observability.LogNodeRecovered(logger, current, target, nodeErr)
			if cg.errorField != "" {
				recorded, err := cg.schema.Merge(state, Delta{cg.errorField: []string{nodeErr.Error()}})
				if err != nil {
					res.Status = StatusFailed
					return res, err
				}
				state = recorded
				res.State = state
			}
			if err := cg.saveCheckpoint(ctx, cfg, logger, state, checkpointPoint{
				nodeID: current, prevNodeID: prev, nextNode: target, steps: res.Steps,
			}); err != nil {
				res.Status = StatusFailed
				return res, err
			}
			prev, current = current, target
			continue
		}

		observability.LogNodeComplete(logger, current, observability.Millis(duration), len(delta))

		next, err := cg.nextNode(ctx, tracingCtx, cfg, logger, state, current)
		if err != nil {
			res.Status = StatusFailed
			return res, err
		}

		if err := cg.saveCheckpoint(ctx, cfg, logger, state, checkpointPoint{
			nodeID: current, prevNodeID: prev, nextNode: next, steps: res.Steps,
		}); err != nil {
			res.Status = StatusFailed
			return res, err
		}

		prev = current
		current = next
	}
}

// suspend ends the invocation at res.Node and persists the suspension.
func (cg *CompiledGraph) suspend(ctx Context, cfg *runConfig, logger *slog.Logger, res Result, prev, reason string) (Result, error) {
	res.Status = StatusSuspended
	res.Reason = reason
	observability.LogSuspend(logger, res.Node, reason)

	if err := cg.saveCheckpoint(ctx, cfg, logger, res.State, checkpointPoint{
		nodeID: res.Node, prevNodeID: prev, nextNode: res.Node, steps: res.Steps,
		suspended: true, reason: reason,
	}); err != nil {
		res.Status = StatusFailed
		return res, err
	}
	return res, nil
}

// checkpointPoint describes where in the run a checkpoint is taken.
type checkpointPoint struct {
	nodeID     string
	prevNodeID string
	nextNode   string
	steps      int
	suspended  bool
	reason     string
}

// saveCheckpoint persists the state and next node when a store is configured.
// Failures are logged unless WithCheckpointFailureFatal was set.
func (cg *CompiledGraph) saveCheckpoint(ctx Context, cfg *runConfig, logger *slog.Logger, state State, at checkpointPoint) error {
	if cfg.checkpointStore == nil {
		return nil
	}

	fail := func(op string, err error) error {
		if cfg.checkpointFailureFatal {
			return &CheckpointError{NodeID: at.nodeID, Op: op, Err: err}
		}
		observability.LogCheckpointError(logger, at.nodeID, op, err)
		return nil
	}

	stateBytes, err := state.MarshalJSON()
	if err != nil {
		return fail("serialize", fmt.Errorf("%w: %v", ErrSerializeState, err))
	}

	cfg.sequence++
	cp := checkpoint.New(cfg.runID, at.nodeID, cfg.sequence, stateBytes, at.nextNode).
		WithPrevNode(at.prevNodeID).
		WithSteps(at.steps)
	if at.suspended {
		cp = cp.Suspended(at.reason)
	}

	if err := cfg.checkpointStore.Save(ctx, cp); err != nil {
		return fail("save", err)
	}

	observability.LogCheckpoint(logger, at.nodeID, len(stateBytes))
	cfg.metrics.RecordCheckpoint(ctx, at.nodeID, int64(len(stateBytes)))
	return nil
}

// executeNode executes a single node with panic recovery.
// Node errors are wrapped in *NodeError; interrupts are returned unwrapped.
func (cg *CompiledGraph) executeNode(ctx Context, base context.Context, runID, nodeID string, state State) (delta Delta, err error) {
	fn, exists := cg.nodes[nodeID]
	if !exists {
		return nil, &NodeError{
			NodeID: nodeID,
			Op:     "lookup",
			Err:    fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID),
		}
	}

	nodeCtx := forNode(ctx, base, runID, nodeID)

	defer func() {
		if r := recover(); r != nil {
			delta = nil
			err = &NodeError{
				NodeID: nodeID,
				Op:     "panic",
				Err: &PanicError{
					NodeID: nodeID,
					Value:  r,
					Stack:  string(debug.Stack()),
				},
			}
		}
	}()

	delta, err = fn(nodeCtx, state)
	if err != nil {
		var interrupt *InterruptError
		if errors.As(err, &interrupt) {
			return nil, interrupt
		}
		return nil, &NodeError{
			NodeID: nodeID,
			Op:     "execute",
			Err:    err,
		}
	}

	return delta, nil
}

// nextNode determines the node after current.
// Conditional edges are consulted first, then the fixed edge. A node with
// neither is treated as terminal.
func (cg *CompiledGraph) nextNode(ctx Context, tracingCtx context.Context, cfg *runConfig, logger *slog.Logger, state State, current string) (string, error) {
	ce, conditional := cg.conditionalEdges[current]
	if !conditional {
		if to, ok := cg.edges[current]; ok {
			return to, nil
		}
		logger.Debug("node has no outgoing edge, terminating", slog.String("node_id", current))
		return END, nil
	}

	label, err := callRouter(ce.router, forNode(ctx, tracingCtx, cfg.runID, current), state, current)
	if err != nil {
		return "", err
	}

	target, ok := ce.destinations[label]
	if !ok {
		return "", &RouterError{
			FromNode: current,
			Returned: label,
			Allowed:  sortedKeys(ce.destinations),
			Err:      ErrUnknownLabel,
		}
	}

	observability.LogRoute(logger, current, label, target)
	cfg.metrics.RecordRoute(ctx, current, label, target)
	if cfg.tracingEnabled {
		cfg.spans.AddSpanEvent(tracingCtx, "route",
			attribute.String("from", current),
			attribute.String("label", label),
			attribute.String("target", target),
		)
	}
	return target, nil
}

// callRouter invokes a router, converting a panic into a *RouterError.
func callRouter(router RouterFunc, ctx Context, state State, from string) (label string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RouterError{
				FromNode: from,
				Err: &PanicError{
					NodeID: from,
					Value:  r,
					Stack:  string(debug.Stack()),
				},
			}
		}
	}()
	return router(ctx, state), nil
}
