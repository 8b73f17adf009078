package taskgraph

import (
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/checkpoint"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/observability"
)

// DefaultMaxSteps is the step cap used when WithMaxSteps is not given.
const DefaultMaxSteps = 50

// runConfig holds configuration for graph execution.
type runConfig struct {
	maxSteps int
	runID    string

	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool

	checkpointStore        checkpoint.Store
	checkpointFailureFatal bool
	sequence               int

	interruptBefore map[string]bool
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		maxSteps:        DefaultMaxSteps,
		metrics:         observability.NoopMetrics{},
		spans:           observability.NoopSpanManager{},
		interruptBefore: map[string]bool{},
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithMaxSteps sets the maximum number of node executions per invocation.
// Default: 50. Values below 1 are ignored.
//
// A run that would execute more nodes fails with a *MaxIterationsError,
// which matches ErrIterationLimit.
//
// Example:
//
//	result, err := compiled.Run(ctx, inputs, taskgraph.WithMaxSteps(10))
func WithMaxSteps(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithRunID sets the run identifier used for checkpoints, logs and spans.
// Defaults to the Context's RunID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithMetrics records node, routing and run metrics.
func WithMetrics(recorder observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithSpanManager enables tracing with the given span manager.
func WithSpanManager(sm observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if sm != nil {
			c.spans = sm
			c.tracingEnabled = true
		}
	}
}

// WithCheckpointStore persists the (next node, state) pair after every node
// and at suspension, under the run ID.
func WithCheckpointStore(store checkpoint.Store) RunOption {
	return func(c *runConfig) {
		c.checkpointStore = store
	}
}

// WithCheckpointFailureFatal makes checkpoint save failures fail the run.
// By default they are logged and execution continues.
func WithCheckpointFailureFatal(fatal bool) RunOption {
	return func(c *runConfig) {
		c.checkpointFailureFatal = fatal
	}
}

// WithInterruptBefore suspends the run before any of the named nodes
// executes. Resuming continues by executing that node.
func WithInterruptBefore(nodes ...string) RunOption {
	return func(c *runConfig) {
		for _, n := range nodes {
			c.interruptBefore[n] = true
		}
	}
}
