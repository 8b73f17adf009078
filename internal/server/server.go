package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/checkpoint"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/definition"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/observability"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/registry"
)

// Server runs catalog workflows on behalf of HTTP clients.
type Server struct {
	catalog  *registry.Registry[*definition.Workflow]
	store    checkpoint.Store
	runs     RunIndex
	cache    *ResponseCache
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	gatherer prometheus.Gatherer
	requests *prometheus.CounterVec
	logger   *slog.Logger

	runTimeout time.Duration
	maxSteps   int
	retention  time.Duration
}

// DefaultRetention is how long the default in-memory stores keep a run.
const DefaultRetention = 24 * time.Hour

// Option configures a Server.
type Option func(*Server)

// WithCheckpointStore sets where runs are checkpointed. Defaults to an
// in-memory store.
func WithCheckpointStore(store checkpoint.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithRunIndex sets where run records are kept. Defaults to memory.
func WithRunIndex(idx RunIndex) Option {
	return func(s *Server) { s.runs = idx }
}

// WithCache enables the response cache.
func WithCache(c *ResponseCache) Option {
	return func(s *Server) { s.cache = c }
}

// WithPrometheus records run and HTTP metrics in reg and serves them on
// /metrics.
func WithPrometheus(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.gatherer = reg
		s.metrics = observability.NewPrometheusRecorder(reg)
		s.requests = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"})
	}
}

// WithSpanManager enables run tracing.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(s *Server) { s.spans = sm }
}

// WithLogger sets the request and run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRunTimeout bounds each run or resume. Zero disables the bound.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Server) { s.runTimeout = d }
}

// WithRetention sets how long the default in-memory checkpoint store and
// run index keep a run. Zero keeps runs forever. Ignored for stores passed
// with WithCheckpointStore or WithRunIndex.
func WithRetention(d time.Duration) Option {
	return func(s *Server) { s.retention = d }
}

// WithMaxSteps sets the step cap for workflows that do not declare one.
func WithMaxSteps(n int) Option {
	return func(s *Server) { s.maxSteps = n }
}

// New creates a Server for catalog.
func New(catalog *registry.Registry[*definition.Workflow], opts ...Option) *Server {
	s := &Server{
		catalog:   catalog,
		metrics:   observability.NoopMetrics{},
		logger:    slog.Default(),
		maxSteps:  taskgraph.DefaultMaxSteps,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = checkpoint.NewMemoryStoreWithTTL(s.retention)
	}
	if s.runs == nil {
		s.runs = NewMemoryRunIndex(s.retention)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "POST /v1/workflows/{name}/runs", s.handleRun)
	s.route(mux, "POST /v1/runs/{run_id}/resume", s.handleResume)
	s.route(mux, "GET /v1/workflows", s.handleList)
	s.route(mux, "GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// route registers h under pattern with request logging and counting.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)

		if s.requests != nil {
			s.requests.WithLabelValues(pattern, strconv.Itoa(rec.status)).Inc()
		}
		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "request completed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	infos := make([]WorkflowInfo, 0, s.catalog.Len())
	s.catalog.Range(func(name string, wf *definition.Workflow) bool {
		infos = append(infos, WorkflowInfo{Name: name, Description: wf.Description, Input: wf.Input})
		return true
	})
	writeJSON(w, http.StatusOK, map[string]any{"workflows": infos})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	wf, err := s.catalog.Lookup(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}

	var req RunRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	inputs, err := runInputs(wf, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(r.Context(), wf.Name, req); ok {
			cached.SessionID = req.SessionID
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	runID := uuid.NewString()
	if err := s.runs.Put(r.Context(), runID, RunRecord{
		Workflow:  wf.Name,
		SessionID: req.SessionID,
		Created:   time.Now().UTC(),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}

	ctx, cancel := s.runContext(r.Context(), runID, wf.Name, req.SessionID)
	defer cancel()

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = s.maxSteps
		if wf.MaxSteps > 0 {
			maxSteps = wf.MaxSteps
		}
	}
	result, runErr := wf.Graph.Run(ctx, inputs, s.runOptions(runID, maxSteps)...)

	resp := newRunResponse(wf.Name, req.SessionID, result, runErr)
	if s.cache != nil && runErr == nil && result.Status == taskgraph.StatusTerminated {
		s.cache.Put(r.Context(), wf.Name, req, resp)
	}
	writeJSON(w, statusForResult(result, runErr), resp)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	rec, err := s.runs.Get(r.Context(), runID)
	if err != nil {
		status := StatusFor(err)
		writeError(w, status, kindForStatus(status), err)
		return
	}
	wf, err := s.catalog.Lookup(rec.Workflow)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}

	var req ResumeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	ctx, cancel := s.runContext(r.Context(), runID, wf.Name, rec.SessionID)
	defer cancel()

	maxSteps := s.maxSteps
	if wf.MaxSteps > 0 {
		maxSteps = wf.MaxSteps
	}
	result, runErr := wf.Graph.ResumeFromCheckpoint(ctx, s.store, runID, req.Updates, s.runOptions(runID, maxSteps)...)
	if errors.Is(runErr, taskgraph.ErrNoCheckpoints) {
		writeError(w, http.StatusNotFound, "not_found", runErr)
		return
	}
	writeJSON(w, statusForResult(result, runErr), newRunResponse(wf.Name, rec.SessionID, result, runErr))
}

func (s *Server) runContext(parent context.Context, runID, workflow, sessionID string) (taskgraph.Context, context.CancelFunc) {
	ctx, cancel := parent, context.CancelFunc(func() {})
	if s.runTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, s.runTimeout)
	}
	logger := s.logger.With(
		slog.String("workflow", workflow),
		slog.String("session_id", sessionID),
	)
	return taskgraph.NewContext(ctx, taskgraph.WithLogger(logger), taskgraph.WithContextRunID(runID)), cancel
}

func (s *Server) runOptions(runID string, maxSteps int) []taskgraph.RunOption {
	opts := []taskgraph.RunOption{
		taskgraph.WithRunID(runID),
		taskgraph.WithMaxSteps(maxSteps),
		taskgraph.WithMetrics(s.metrics),
		taskgraph.WithCheckpointStore(s.store),
	}
	if s.spans != nil {
		opts = append(opts, taskgraph.WithSpanManager(s.spans))
	}
	return opts
}

// runInputs builds the initial state overrides for req.
func runInputs(wf *definition.Workflow, req RunRequest) (map[string]any, error) {
	inputs := make(map[string]any, len(req.Inputs)+1)
	for k, v := range req.Inputs {
		inputs[k] = v
	}
	if req.Query == "" {
		return inputs, nil
	}
	if wf.Input == "" {
		return nil, fmt.Errorf("workflow %s takes no query; use inputs", wf.Name)
	}
	if _, set := inputs[wf.Input]; !set {
		inputs[wf.Input] = req.Query
	}
	return inputs, nil
}

// decodeBody decodes a JSON body. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
