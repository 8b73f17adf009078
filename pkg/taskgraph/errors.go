package taskgraph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryPoint indicates SetEntry() was not called before Compile().
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point references a non-existent node.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrNodeNotFound indicates an edge references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrMixedEdges indicates a node has both a fixed edge and conditional edges.
	ErrMixedEdges = errors.New("node has both fixed and conditional edges")

	// ErrDuplicateEdge indicates a node has more than one fixed edge.
	ErrDuplicateEdge = errors.New("node has more than one fixed edge")

	// ErrDeadEnd indicates a reachable node has no outgoing edge and is not terminal.
	ErrDeadEnd = errors.New("reachable node has no outgoing edge")

	// ErrInvalidErrorField indicates the error field is not an APPEND field of strings.
	ErrInvalidErrorField = errors.New("error field must be an append field of strings")
)

// Sentinel errors for execution. The typed errors below match these with
// errors.Is, so callers can branch on the failure category alone.
var (
	// ErrConfiguration indicates invalid initial values or resume updates.
	ErrConfiguration = errors.New("configuration error")

	// ErrSchemaViolation indicates a delta wrote an undeclared field or a
	// value of the wrong kind.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrNodeExecution indicates a node failed.
	ErrNodeExecution = errors.New("node execution failed")

	// ErrRouting indicates a router returned a label outside its destination table.
	ErrRouting = errors.New("routing error")

	// ErrIterationLimit indicates the execution loop exceeded its step cap.
	ErrIterationLimit = errors.New("iteration limit exceeded")

	// ErrCancelled indicates the caller cancelled the invocation.
	ErrCancelled = errors.New("cancelled")

	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrUnknownLabel indicates a router label absent from the destination table.
	ErrUnknownLabel = errors.New("label not in destination table")
)

// Sentinel errors for checkpointing and resume.
var (
	// ErrSerializeState indicates state serialization failed.
	ErrSerializeState = errors.New("failed to serialize state")

	// ErrDeserializeState indicates state deserialization failed.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrNoCheckpoints indicates no checkpoints exist for the run.
	ErrNoCheckpoints = errors.New("no checkpoints found for run")

	// ErrInvalidResumeNode indicates the resume node doesn't exist in the graph.
	ErrInvalidResumeNode = errors.New("invalid resume node")

	// ErrCheckpointVersionMismatch indicates the checkpoint version is incompatible.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// ConfigurationError reports an invalid initial value or resume update.
type ConfigurationError struct {
	// Field is the offending field name.
	Field string
	// Reason describes what is wrong with it.
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: field %q: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// SchemaViolationError reports a delta that does not fit the schema.
type SchemaViolationError struct {
	// NodeID is the node whose delta was rejected. Empty for direct Merge calls.
	NodeID string
	// Field is the offending field name.
	Field string
	// Reason describes the mismatch.
	Reason string
}

// Error implements the error interface.
func (e *SchemaViolationError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("schema violation: field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("schema violation in node %s: field %q: %s", e.NodeID, e.Field, e.Reason)
}

// Is reports whether target is ErrSchemaViolation.
func (e *SchemaViolationError) Is(target error) bool {
	return target == ErrSchemaViolation
}

// CheckpointError wraps errors from checkpoint operations.
type CheckpointError struct {
	// NodeID is the node where checkpointing failed.
	NodeID string
	// Op is the operation that failed ("save", "load", "serialize").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s at node %s: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error with node context.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed ("execute" or "panic").
	Op string
	// Err is the underlying error from the node.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrNodeExecution.
func (e *NodeError) Is(target error) bool {
	return target == ErrNodeExecution
}

// PanicError captures panic information from a node or router.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError reports where an invocation was cancelled.
// The state at that point is carried by the Result returned alongside it.
type CancellationError struct {
	// NodeID is the node that was about to execute or was executing.
	NodeID string
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
	// WasExecuting is true if cancellation surfaced from inside the node.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrCancelled.
func (e *CancellationError) Is(target error) bool {
	return target == ErrCancelled
}

// RouterError reports a routing failure after a conditional node.
type RouterError struct {
	// FromNode is the node with the conditional edges.
	FromNode string
	// Returned is the label the router returned.
	Returned string
	// Allowed lists the labels in the destination table, sorted.
	Allowed []string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RouterError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("router from %s returned %q: %v", e.FromNode, e.Returned, e.Err)
	}
	return fmt.Sprintf("router from %s returned %q: %v (allowed: %s)",
		e.FromNode, e.Returned, e.Err, strings.Join(e.Allowed, ", "))
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RouterError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRouting.
func (e *RouterError) Is(target error) bool {
	return target == ErrRouting
}

// MaxIterationsError reports that the step cap was reached.
type MaxIterationsError struct {
	// Max is the configured step cap.
	Max int
	// LastNodeID is the node that would have executed next.
	LastNodeID string
}

// Error implements the error interface.
func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("exceeded maximum iterations (%d) at node %s", e.Max, e.LastNodeID)
}

// Unwrap returns ErrIterationLimit for errors.Is support.
func (e *MaxIterationsError) Unwrap() error {
	return ErrIterationLimit
}

// InterruptError is returned by a node that wants the run to suspend.
// The node is re-run when the run is resumed.
type InterruptError struct {
	Reason string
}

// Error implements the error interface.
func (e *InterruptError) Error() string {
	return "interrupted: " + e.Reason
}

// Interrupt returns an error that suspends the run at the current node.
//
//	if !s.Bool("approved") {
//	    return nil, taskgraph.Interrupt("awaiting approval")
//	}
func Interrupt(reason string) error {
	return &InterruptError{Reason: reason}
}

// ErrorKind classifies an execution error.
type ErrorKind int

const (
	// ErrorKindNone means err was nil.
	ErrorKindNone ErrorKind = iota
	// ErrorKindConfiguration is a bad initial value or resume update.
	ErrorKindConfiguration
	// ErrorKindSchemaViolation is a delta rejected by the schema.
	ErrorKindSchemaViolation
	// ErrorKindNodeExecution is a node failure.
	ErrorKindNodeExecution
	// ErrorKindRouting is an out-of-table router label.
	ErrorKindRouting
	// ErrorKindIterationLimit is an exhausted step cap.
	ErrorKindIterationLimit
	// ErrorKindCancelled is a caller cancellation or deadline.
	ErrorKindCancelled
	// ErrorKindInternal is anything else (checkpoint, resume, nil context).
	ErrorKindInternal
)

// String returns the snake_case name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindConfiguration:
		return "configuration_error"
	case ErrorKindSchemaViolation:
		return "schema_violation"
	case ErrorKindNodeExecution:
		return "node_execution_error"
	case ErrorKindRouting:
		return "routing_error"
	case ErrorKindIterationLimit:
		return "iteration_limit_exceeded"
	case ErrorKindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// KindOf classifies err into one of the execution error kinds.
// A *NodeError is classified as a node failure whatever its cause, unless
// the chain also holds a *CancellationError.
func KindOf(err error) ErrorKind {
	var nodeErr *NodeError
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrCancelled):
		return ErrorKindCancelled
	case errors.As(err, &nodeErr):
		return ErrorKindNodeExecution
	case errors.Is(err, ErrConfiguration):
		return ErrorKindConfiguration
	case errors.Is(err, ErrSchemaViolation):
		return ErrorKindSchemaViolation
	case errors.Is(err, ErrIterationLimit):
		return ErrorKindIterationLimit
	case errors.Is(err, ErrRouting):
		return ErrorKindRouting
	case errors.Is(err, ErrNodeExecution):
		return ErrorKindNodeExecution
	default:
		return ErrorKindInternal
	}
}
