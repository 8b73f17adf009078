// Package llm defines the completion client that node bodies call, with
// adapters for Anthropic and OpenAI and a mock for tests and offline runs.
//
// Provider failures are reported as *retry.StatusError so that retry can
// tell rate limits from bad credentials. Wrap a client with WithRetry to
// retry the transient ones.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph/config"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/retry"
)

// Client performs completions.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return f(ctx, req)
}

// New builds the client selected by settings. The "mock" provider echoes
// the last user message and needs no credentials.
func New(settings config.LLMSettings) (Client, error) {
	var client Client
	switch settings.Provider {
	case "anthropic":
		client = NewAnthropicClient(settings.APIKey,
			WithModel(settings.Model),
			WithMaxTokens(settings.MaxTokens),
			WithTemperature(settings.Temperature),
			WithTimeout(settings.Timeout))
	case "openai":
		client = NewOpenAIClient(settings.APIKey,
			WithModel(settings.Model),
			WithMaxTokens(settings.MaxTokens),
			WithTemperature(settings.Temperature),
			WithTimeout(settings.Timeout))
	case "mock", "":
		return NewMockClient("").WithCompleteFunc(Echo), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", settings.Provider)
	}
	return WithRetry(client, retry.Default, slog.Default()), nil
}

// Echo is a CompleteFunc that answers with the last user message.
func Echo(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	content := req.LastUserMessage()
	return &CompletionResponse{
		Content:      content,
		Model:        "mock",
		FinishReason: "stop",
		Usage:        estimateUsage(req, content),
	}, nil
}

// WithRetry wraps client so transient provider failures are retried
// according to policy.
func WithRetry(client Client, policy retry.Policy, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			logger.Warn("completion failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()))
		}
	}
	return ClientFunc(func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
		return retry.Do(ctx, policy, "completion", func(ctx context.Context) (*CompletionResponse, error) {
			return client.Complete(ctx, req)
		})
	})
}

// options shared by the provider adapters.
type options struct {
	model       string
	maxTokens   int
	temperature *float64
	timeout     time.Duration
	baseURL     string
}

// Option configures a provider client.
type Option func(*options)

// WithModel sets the default model. Empty keeps the provider default.
func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// WithMaxTokens sets the default response token limit.
func WithMaxTokens(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *options) { o.temperature = &t }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithBaseURL points the client at a different endpoint, such as a proxy
// or a test server.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

func buildOptions(defaultModel string, opts []Option) options {
	o := options{model: defaultModel, maxTokens: 1024}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) resolve(req CompletionRequest) (model string, maxTokens int, temperature *float64) {
	model, maxTokens, temperature = o.model, o.maxTokens, o.temperature
	if req.Model != "" {
		model = req.Model
	}
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		temperature = req.Temperature
	}
	return model, maxTokens, temperature
}

// estimateUsage approximates token counts at four characters per token.
func estimateUsage(req CompletionRequest, content string) TokenUsage {
	in := len(req.SystemPrompt)
	for _, m := range req.Messages {
		in += len(m.Content)
	}
	u := TokenUsage{InputTokens: in / 4, OutputTokens: len(content) / 4}
	u.TotalTokens = u.InputTokens + u.OutputTokens
	return u
}
