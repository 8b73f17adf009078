package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest creates a recorder on an isolated meter provider.
func setupMetricsTest(t *testing.T) (MetricsRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	})

	recorder, err := NewMetricsRecorderWithMeter(provider.Meter("taskgraph-test"))
	require.NoError(t, err)
	return recorder, reader
}

// collectMetrics collects all metrics from the reader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

// findMetric finds a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value for the datapoint carrying key=value.
func sumFor(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "Expected Sum type")
	for _, dp := range sum.DataPoints {
		if v, found := dp.Attributes.Value(attribute.Key(key)); found && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestNewMetricsRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(original) })

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestOtelMetrics_RecordNodeExecution(t *testing.T) {
	m, reader := setupMetricsTest(t)
	ctx := context.Background()

	m.RecordNodeExecution(ctx, "classify", 50*time.Millisecond, nil)
	m.RecordNodeExecution(ctx, "classify", 10*time.Millisecond, errors.New("llm down"))

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumFor(t, findMetric(rm, "taskgraph.node.executions"), "node_id", "classify"))
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "taskgraph.node.errors"), "node_id", "classify"))

	latency := findMetric(rm, "taskgraph.node.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "Expected Histogram type")
	require.NotEmpty(t, hist.DataPoints)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestOtelMetrics_RecordRouteAndRun(t *testing.T) {
	m, reader := setupMetricsTest(t)
	ctx := context.Background()

	m.RecordRoute(ctx, "classify", "bug", "bug_tracking")
	m.RecordRun(ctx, "terminated", time.Second)
	m.RecordRun(ctx, "suspended", time.Second)
	m.RecordCheckpoint(ctx, "classify", 512)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "taskgraph.route.decisions"), "label", "bug"))
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "taskgraph.run.count"), "status", "terminated"))
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "taskgraph.run.count"), "status", "suspended"))
	assert.NotNil(t, findMetric(rm, "taskgraph.checkpoint.size_bytes"))
}

// promCount returns the counter value, or histogram sample count, of the
// series in family name whose labels include all of want.
func promCount(t *testing.T, registry *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, want) {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			if h := m.GetHistogram(); h != nil {
				return float64(h.GetSampleCount())
			}
		}
	}
	return 0
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestPrometheusRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	p := NewPrometheusRecorder(registry)
	ctx := context.Background()

	p.RecordNodeExecution(ctx, "classify", 5*time.Millisecond, nil)
	p.RecordNodeExecution(ctx, "classify", 5*time.Millisecond, errors.New("x"))
	p.RecordRoute(ctx, "classify", "bug", "bug_tracking")
	p.RecordRun(ctx, "failed", time.Millisecond)
	p.RecordCheckpoint(ctx, "classify", 1024)

	assert.InDelta(t, 1, promCount(t, registry, "taskgraph_node_executions_total",
		map[string]string{"node_id": "classify", "status": "success"}), 0)
	assert.InDelta(t, 1, promCount(t, registry, "taskgraph_node_executions_total",
		map[string]string{"node_id": "classify", "status": "error"}), 0)
	assert.InDelta(t, 2, promCount(t, registry, "taskgraph_node_latency_ms",
		map[string]string{"node_id": "classify"}), 0)
	assert.InDelta(t, 1, promCount(t, registry, "taskgraph_route_decisions_total",
		map[string]string{"label": "bug", "target": "bug_tracking"}), 0)
	assert.InDelta(t, 1, promCount(t, registry, "taskgraph_runs_total",
		map[string]string{"status": "failed"}), 0)
	assert.InDelta(t, 1, promCount(t, registry, "taskgraph_checkpoint_size_bytes",
		map[string]string{"node_id": "classify"}), 0)
}

func TestMulti(t *testing.T) {
	registry := prometheus.NewRegistry()
	p := NewPrometheusRecorder(registry)
	m, reader := setupMetricsTest(t)

	multi := Multi(p, m, NoopMetrics{})
	multi.RecordRun(context.Background(), "terminated", time.Millisecond)

	assert.InDelta(t, 1, promCount(t, registry, "taskgraph_runs_total",
		map[string]string{"status": "terminated"}), 0)
	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "taskgraph.run.count"), "status", "terminated"))
}
