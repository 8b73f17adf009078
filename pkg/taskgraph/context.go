package taskgraph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/observability"
)

// Context provides execution context to nodes and routers.
// It extends context.Context with run metadata and a logger.
//
// Services a node needs (LLM clients, search, indexes) are not carried here;
// they are injected when the node function is constructed.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with run and node context.
	// Never returns nil - defaults to slog.Default() if not configured.
	Logger() *slog.Logger

	// RunID returns the unique identifier for this execution run.
	// Auto-generated if not configured.
	RunID() string

	// NodeID returns the current node being executed.
	// Empty string before execution starts.
	NodeID() string
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger *slog.Logger
	runID  string
	nodeID string
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// RunID returns the run identifier.
func (c *executionContext) RunID() string {
	return c.runID
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
// The logger is enriched with run_id and node_id during execution.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextRunID sets the run identifier for the context.
// If not set, a UUID is generated. A RunOption WithRunID takes precedence.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext creates an execution context from a standard context.
//
// Example:
//
//	ctx := taskgraph.NewContext(context.Background(),
//	    taskgraph.WithLogger(myLogger),
//	    taskgraph.WithContextRunID("run-123"))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// forNode returns a context for one node invocation with the node ID set
// and the logger enriched. base carries cancellation and span context and
// must derive from ctx.
func forNode(ctx Context, base context.Context, runID, nodeID string) Context {
	return &executionContext{
		Context: base,
		logger:  observability.EnrichLogger(loggerOf(ctx), runID, nodeID),
		runID:   runID,
		nodeID:  nodeID,
	}
}
