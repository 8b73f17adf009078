package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/registry"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// StatusFor maps a run error to an HTTP status code.
//
//	configuration error                     400
//	schema violation                        422
//	node failure, routing, step cap, other  500
//	deadline exceeded                       504
//	cancelled by the caller                 503
func StatusFor(err error) int {
	switch taskgraph.KindOf(err) {
	case taskgraph.ErrorKindNone:
		return http.StatusOK
	case taskgraph.ErrorKindConfiguration:
		return http.StatusBadRequest
	case taskgraph.ErrorKindSchemaViolation:
		return http.StatusUnprocessableEntity
	case taskgraph.ErrorKindCancelled:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	}
	switch {
	case errors.Is(err, registry.ErrNotRegistered),
		errors.Is(err, ErrRunNotFound),
		errors.Is(err, taskgraph.ErrNoCheckpoints):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// statusForResult picks the response code for a finished invocation.
func statusForResult(result taskgraph.Result, err error) int {
	if err != nil {
		return StatusFor(err)
	}
	if result.Status == taskgraph.StatusSuspended {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

// kindForStatus names the error kind of a request that failed before any
// workflow ran.
func kindForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "bad_request"
	default:
		return "internal"
	}
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, map[string]any{
		"error": ErrorBody{Kind: kind, Message: err.Error()},
	})
}
