// Command taskgraph-server serves the built-in workflows over HTTP.
//
// Configuration comes from an optional YAML or JSON file (-config) with
// TASKGRAPH_ environment variables layered on top; a .env file in the
// working directory is loaded first. Nested keys use a double underscore:
//
//	TASKGRAPH_SERVER__ADDR=:8080
//	TASKGRAPH_LLM__PROVIDER=anthropic
//	TASKGRAPH_LLM__API_KEY=...
//	TASKGRAPH_REDIS__ADDR=localhost:6379
//	TASKGRAPH_CHECKPOINT__BACKEND=redis
//
// Usage:
//
//	taskgraph-server -config taskgraph.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/randalmurphal/taskgraph/internal/server"
	"github.com/randalmurphal/taskgraph/internal/tools"
	"github.com/randalmurphal/taskgraph/internal/workflows"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/checkpoint"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/config"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/llm"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/observability"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON settings file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(configPath, "TASKGRAPH_")
	if err != nil {
		return err
	}
	settings := config.SettingsFrom(cfg)
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	logger, err := newLogger(settings.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if settings.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     settings.Redis.Addr,
			Password: settings.Redis.Password,
			DB:       settings.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("connect to redis: %w", err)
		}
	}

	store, err := newCheckpointStore(settings, rdb)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing checkpoint store", slog.String("error", err.Error()))
		}
		// The redis store owns the shared client.
		if rdb != nil && settings.Checkpoint.Backend != "redis" {
			_ = rdb.Close()
		}
	}()

	deps, err := newDeps(ctx, settings)
	if err != nil {
		return err
	}
	catalog, err := workflows.Catalog(deps)
	if err != nil {
		return err
	}
	if dir := settings.Engine.DefinitionsDir; dir != "" {
		loaded, err := workflows.LoadDir(catalog, dir, deps)
		if err != nil {
			return err
		}
		logger.Info("loaded workflow definitions", slog.String("dir", dir), slog.Any("workflows", loaded))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []server.Option{
		server.WithCheckpointStore(store),
		server.WithPrometheus(reg),
		server.WithSpanManager(observability.NewSpanManager()),
		server.WithLogger(logger),
		server.WithRunTimeout(settings.Server.RunTimeout),
		server.WithMaxSteps(settings.Engine.MaxSteps),
		server.WithRetention(settings.Checkpoint.TTL),
	}
	if rdb != nil {
		opts = append(opts, server.WithRunIndex(
			server.NewRedisRunIndex(rdb, settings.Redis.Prefix, settings.Checkpoint.TTL)))
	}
	if settings.Cache.Enabled {
		opts = append(opts, server.WithCache(
			server.NewResponseCache(rdb, settings.Redis.Prefix, settings.Cache.TTL, logger)))
	}

	srv := &http.Server{
		Addr:         settings.Server.Addr,
		Handler:      server.New(catalog, opts...).Handler(),
		ReadTimeout:  settings.Server.ReadTimeout,
		WriteTimeout: settings.Server.WriteTimeout,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("llm_provider", settings.LLM.Provider),
			slog.String("checkpoint_backend", settings.Checkpoint.Backend),
			slog.Any("workflows", catalog.Names()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newLogger(s config.LogSettings) (*slog.Logger, error) {
	level, err := config.ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if s.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
}

func newCheckpointStore(s config.Settings, rdb *redis.Client) (checkpoint.Store, error) {
	switch s.Checkpoint.Backend {
	case "sqlite":
		store, err := checkpoint.NewSQLiteStore(s.Checkpoint.Path)
		if err != nil {
			return nil, fmt.Errorf("open checkpoint database: %w", err)
		}
		return store, nil
	case "redis":
		return checkpoint.NewRedisStoreWithClient(rdb, s.Redis.Prefix+"checkpoint:", s.Checkpoint.TTL), nil
	default:
		return checkpoint.NewMemoryStoreWithTTL(s.Checkpoint.TTL), nil
	}
}

func newDeps(ctx context.Context, s config.Settings) (workflows.Deps, error) {
	client, err := llm.New(s.LLM)
	if err != nil {
		return workflows.Deps{}, err
	}

	var embedder tools.Embedder = tools.HashEmbedder{Dims: 256}
	if s.LLM.Provider == "openai" {
		embedder = tools.OpenAIEmbedder{Client: llm.NewOpenAIClient(s.LLM.APIKey, llm.WithTimeout(s.LLM.Timeout))}
	}
	knowledge := tools.NewVectorIndex(embedder)
	if err := knowledge.Add(ctx, workflows.SupportArticles...); err != nil {
		return workflows.Deps{}, fmt.Errorf("index support articles: %w", err)
	}

	deps := workflows.Deps{
		LLM:          client,
		Knowledge:    knowledge,
		MaxRevisions: s.Engine.MaxRevisions,
	}
	if s.Search.Endpoint != "" {
		deps.Search = tools.NewWebSearch(s.Search.Endpoint, s.Search.Timeout)
	}
	return deps, nil
}
