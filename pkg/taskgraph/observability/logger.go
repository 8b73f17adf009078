// Package observability provides structured logging, metrics, and
// distributed tracing for taskgraph runs.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry, or Prometheus for a scrape endpoint
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger.
// Returns a new logger with run_id and node_id fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "classify")
//	enriched.Info("doing work") // includes run_id, node_id
func EnrichLogger(logger *slog.Logger, runID, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
	)
}

// LogRunStart logs the start of a run. startNode is the entry point, or the
// node a resumed run continues from.
func LogRunStart(logger *slog.Logger, runID, startNode string, resumed bool) {
	if logger == nil {
		return
	}
	logger.Info("workflow run starting",
		slog.String("run_id", runID),
		slog.String("start_node", startNode),
		slog.Bool("resumed", resumed),
	)
}

// LogRunComplete logs a run that ended without error (terminated or suspended).
func LogRunComplete(logger *slog.Logger, runID, status string, durationMs float64, steps int) {
	if logger == nil {
		return
	}
	logger.Info("workflow run completed",
		slog.String("run_id", runID),
		slog.String("status", status),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps", steps),
	)
}

// LogRunError logs a failed or cancelled run.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("workflow run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogSuspend logs a run pausing for external input.
func LogSuspend(logger *slog.Logger, nodeID, reason string) {
	if logger == nil {
		return
	}
	logger.Info("workflow run suspended",
		slog.String("node_id", nodeID),
		slog.String("reason", reason),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string, step int) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64, fields int) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("delta_fields", fields),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogNodeRecovered logs a node failure that was routed along an error edge.
func LogNodeRecovered(logger *slog.Logger, nodeID, target string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("node failed, continuing on error edge",
		slog.String("node_id", nodeID),
		slog.String("target", target),
		slog.String("error", err.Error()),
	)
}

// LogRoute logs a routing decision.
func LogRoute(logger *slog.Logger, fromNode, label, target string) {
	if logger == nil {
		return
	}
	logger.Debug("route selected",
		slog.String("from", fromNode),
		slog.String("label", label),
		slog.String("target", target),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, nodeID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("node_id", nodeID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs checkpoint failure (non-fatal).
func LogCheckpointError(logger *slog.Logger, nodeID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("node_id", nodeID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	elapsed := done()
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}

// Millis converts a duration to fractional milliseconds for log fields.
func Millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
