package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder is a MetricsRecorder backed by Prometheus collectors.
//
// Metrics (namespace "taskgraph"):
//   - node_executions_total{node_id, status}
//   - node_latency_ms{node_id}
//   - route_decisions_total{from, label, target}
//   - runs_total{status}
//   - run_latency_ms{status}
//   - checkpoint_size_bytes{node_id}
//
// Expose the registry for scraping with
//
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusRecorder struct {
	nodeExecutions *prometheus.CounterVec
	nodeLatency    *prometheus.HistogramVec
	routes         *prometheus.CounterVec
	runs           *prometheus.CounterVec
	runLatency     *prometheus.HistogramVec
	checkpointSize *prometheus.HistogramVec
}

// Compile-time interface check.
var _ MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates and registers the collectors with registry.
// A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusRecorder(registry prometheus.Registerer) *PrometheusRecorder {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)
	latencyBuckets := []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000}

	return &PrometheusRecorder{
		nodeExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "node_executions_total",
			Help:      "Node executions by outcome",
		}, []string{"node_id", "status"}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskgraph",
			Name:      "node_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   latencyBuckets,
		}, []string{"node_id"}),
		routes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "route_decisions_total",
			Help:      "Router decisions by label",
		}, []string{"from", "label", "target"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "runs_total",
			Help:      "Workflow runs by final status",
		}, []string{"status"}),
		runLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskgraph",
			Name:      "run_latency_ms",
			Help:      "Workflow run duration in milliseconds",
			Buckets:   latencyBuckets,
		}, []string{"status"}),
		checkpointSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskgraph",
			Name:      "checkpoint_size_bytes",
			Help:      "Serialized checkpoint size in bytes",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"node_id"}),
	}
}

// RecordNodeExecution records a node execution.
func (p *PrometheusRecorder) RecordNodeExecution(_ context.Context, nodeID string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.nodeExecutions.WithLabelValues(nodeID, status).Inc()
	p.nodeLatency.WithLabelValues(nodeID).Observe(Millis(duration))
}

// RecordRoute records a routing decision.
func (p *PrometheusRecorder) RecordRoute(_ context.Context, fromNode, label, target string) {
	p.routes.WithLabelValues(fromNode, label, target).Inc()
}

// RecordRun records a workflow run.
func (p *PrometheusRecorder) RecordRun(_ context.Context, status string, duration time.Duration) {
	p.runs.WithLabelValues(status).Inc()
	p.runLatency.WithLabelValues(status).Observe(Millis(duration))
}

// RecordCheckpoint records a checkpoint save.
func (p *PrometheusRecorder) RecordCheckpoint(_ context.Context, nodeID string, sizeBytes int64) {
	p.checkpointSize.WithLabelValues(nodeID).Observe(float64(sizeBytes))
}
