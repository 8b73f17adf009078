package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records taskgraph metrics.
// Use NewMetricsRecorder() for OTel metrics, NewPrometheusRecorder() for a
// scrape endpoint, or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordRoute records a router decision.
	RecordRoute(ctx context.Context, fromNode, label, target string)

	// RecordRun records the end of a run with its final status
	// ("terminated", "failed", "suspended", "cancelled").
	RecordRun(ctx context.Context, status string, duration time.Duration)

	// RecordCheckpoint records a checkpoint save operation.
	RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	routes         metric.Int64Counter
	runs           metric.Int64Counter
	runLatency     metric.Float64Histogram
	checkpointSize metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.Meter("taskgraph"))
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates the instruments on the given meter.
func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	nodeExecutions, err := meter.Int64Counter("taskgraph.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("taskgraph.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("taskgraph.node.errors",
		metric.WithDescription("Number of node execution errors"),
	)
	if err != nil {
		return nil, err
	}

	routes, err := meter.Int64Counter("taskgraph.route.decisions",
		metric.WithDescription("Number of router decisions by label"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter("taskgraph.run.count",
		metric.WithDescription("Number of workflow runs by final status"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("taskgraph.run.latency_ms",
		metric.WithDescription("Workflow run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("taskgraph.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions: nodeExecutions,
		nodeLatency:    nodeLatency,
		nodeErrors:     nodeErrors,
		routes:         routes,
		runs:           runs,
		runLatency:     runLatency,
		checkpointSize: checkpointSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderWithMeter returns an OTel recorder bound to a specific
// meter rather than the global provider.
func NewMetricsRecorderWithMeter(meter metric.Meter) (MetricsRecorder, error) {
	return newOtelMetrics(meter)
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("node_id", nodeID),
	}

	m.nodeExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.nodeLatency.Record(ctx, Millis(duration), metric.WithAttributes(attrs...))

	if err != nil {
		m.nodeErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRoute records a routing decision.
func (m *otelMetrics) RecordRoute(ctx context.Context, fromNode, label, target string) {
	m.routes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", fromNode),
		attribute.String("label", label),
		attribute.String("target", target),
	))
}

// RecordRun records a workflow run.
func (m *otelMetrics) RecordRun(ctx context.Context, status string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("status", status),
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.runLatency.Record(ctx, Millis(duration), metric.WithAttributes(attrs...))
}

// RecordCheckpoint records a checkpoint save.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64) {
	attrs := []attribute.KeyValue{
		attribute.String("node_id", nodeID),
	}
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attrs...))
}

// multiRecorder fans out to several recorders.
type multiRecorder []MetricsRecorder

// Multi returns a recorder that forwards every call to each of recorders.
func Multi(recorders ...MetricsRecorder) MetricsRecorder {
	return multiRecorder(recorders)
}

func (m multiRecorder) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	for _, r := range m {
		r.RecordNodeExecution(ctx, nodeID, duration, err)
	}
}

func (m multiRecorder) RecordRoute(ctx context.Context, fromNode, label, target string) {
	for _, r := range m {
		r.RecordRoute(ctx, fromNode, label, target)
	}
}

func (m multiRecorder) RecordRun(ctx context.Context, status string, duration time.Duration) {
	for _, r := range m {
		r.RecordRun(ctx, status, duration)
	}
}

func (m multiRecorder) RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64) {
	for _, r := range m {
		r.RecordCheckpoint(ctx, nodeID, sizeBytes)
	}
}
