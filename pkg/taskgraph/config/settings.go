package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// Settings is the typed runtime configuration of the taskgraph server.
// Build it with SettingsFrom; zero fields are never consulted directly.
type Settings struct {
	Server     ServerSettings
	Log        LogSettings
	Engine     EngineSettings
	Checkpoint CheckpointSettings
	Redis      RedisSettings
	Cache      CacheSettings
	LLM        LLMSettings
	Search     SearchSettings
}

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RunTimeout bounds a single workflow invocation.
	RunTimeout time.Duration
}

// LogSettings configures the slog handler.
type LogSettings struct {
	Level  string
	Format string
}

// EngineSettings configures workflow execution.
type EngineSettings struct {
	MaxSteps     int
	MaxRevisions int
	// DefinitionsDir holds extra YAML workflow definitions. Empty skips them.
	DefinitionsDir string
}

// CheckpointSettings selects where suspended runs are persisted.
type CheckpointSettings struct {
	// Backend is one of "memory", "sqlite", "redis".
	Backend string
	Path    string
	TTL     time.Duration
}

// RedisSettings configures the shared Redis connection.
type RedisSettings struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// CacheSettings configures the response cache.
type CacheSettings struct {
	Enabled bool
	TTL     time.Duration
}

// LLMSettings selects the completion provider.
type LLMSettings struct {
	// Provider is one of "mock", "anthropic", "openai".
	Provider    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// SearchSettings configures the web search tool.
type SearchSettings struct {
	Endpoint string
	Timeout  time.Duration
}

// Known option values.
var (
	CheckpointBackends = []string{"memory", "sqlite", "redis"}
	LLMProviders       = []string{"mock", "anthropic", "openai"}
	LogFormats         = []string{"json", "text"}
)

// SettingsFrom extracts Settings from cfg, applying defaults for anything
// missing.
func SettingsFrom(cfg Config) Settings {
	redisAddr := cfg.String("redis.addr", "")
	return Settings{
		Server: ServerSettings{
			Addr:         cfg.String("server.addr", ":8080"),
			ReadTimeout:  cfg.Duration("server.read_timeout", 15*time.Second),
			WriteTimeout: cfg.Duration("server.write_timeout", 2*time.Minute),
			RunTimeout:   cfg.Duration("server.run_timeout", 90*time.Second),
		},
		Log: LogSettings{
			Level:  strings.ToLower(cfg.String("log.level", "info")),
			Format: strings.ToLower(cfg.String("log.format", "json")),
		},
		Engine: EngineSettings{
			MaxSteps:       cfg.Int("engine.max_steps", 50),
			MaxRevisions:   cfg.Int("engine.max_revisions", 2),
			DefinitionsDir: cfg.String("engine.definitions_dir", ""),
		},
		Checkpoint: CheckpointSettings{
			Backend: strings.ToLower(cfg.String("checkpoint.backend", "memory")),
			Path:    cfg.String("checkpoint.path", "taskgraph.db"),
			TTL:     cfg.Duration("checkpoint.ttl", 24*time.Hour),
		},
		Redis: RedisSettings{
			Addr:     redisAddr,
			Password: cfg.String("redis.password", ""),
			DB:       cfg.Int("redis.db", 0),
			Prefix:   cfg.String("redis.prefix", "taskgraph:"),
		},
		Cache: CacheSettings{
			Enabled: cfg.Bool("cache.enabled", redisAddr != ""),
			TTL:     cfg.Duration("cache.ttl", time.Hour),
		},
		LLM: LLMSettings{
			Provider:    strings.ToLower(cfg.String("llm.provider", "mock")),
			Model:       cfg.String("llm.model", ""),
			APIKey:      cfg.String("llm.api_key", ""),
			MaxTokens:   cfg.Int("llm.max_tokens", 1024),
			Temperature: cfg.Float("llm.temperature", 0.2),
			Timeout:     cfg.Duration("llm.timeout", time.Minute),
		},
		Search: SearchSettings{
			Endpoint: cfg.String("search.endpoint", "https://html.duckduckgo.com/html/"),
			Timeout:  cfg.Duration("search.timeout", 10*time.Second),
		},
	}
}

// Validate reports every invalid setting, joined.
func (s Settings) Validate() error {
	var errs []error
	if !slices.Contains(CheckpointBackends, s.Checkpoint.Backend) {
		errs = append(errs, fmt.Errorf("checkpoint.backend: unknown backend %q", s.Checkpoint.Backend))
	}
	if s.Checkpoint.Backend == "redis" && s.Redis.Addr == "" {
		errs = append(errs, errors.New("checkpoint.backend: redis requires redis.addr"))
	}
	if s.Cache.Enabled && s.Redis.Addr == "" {
		errs = append(errs, errors.New("cache.enabled: requires redis.addr"))
	}
	if !slices.Contains(LLMProviders, s.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", s.LLM.Provider))
	}
	if !slices.Contains(LogFormats, s.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", s.Log.Format))
	}
	if _, err := ParseLevel(s.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if s.Engine.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("engine.max_steps: must be positive, got %d", s.Engine.MaxSteps))
	}
	if s.Engine.MaxRevisions < 0 {
		errs = append(errs, fmt.Errorf("engine.max_revisions: must not be negative, got %d", s.Engine.MaxRevisions))
	}
	return errors.Join(errs...)
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level %q", name)
	}
	return level, nil
}
