package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph/retry"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicClient completes with the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	opts   options
}

// NewAnthropicClient creates a client authenticated with apiKey. SDK-level
// retries are disabled; wrap the client with WithRetry instead.
func NewAnthropicClient(apiKey string, opts ...Option) *AnthropicClient {
	o := buildOptions(DefaultAnthropicModel, opts)
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	if o.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(o.timeout))
	}
	return &AnthropicClient{client: anthropic.NewClient(reqOpts...), opts: o}
}

// Complete sends req as a single Messages call.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model, maxTokens, temperature := c.opts.resolve(req)

	msgs, system := anthropicMessages(req)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if temperature != nil {
		params.Temperature = anthropic.Float(*temperature)
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, anthropicError(err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	usage := TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	return &CompletionResponse{
		Content:      content.String(),
		Usage:        usage,
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
		Duration:     time.Since(start),
	}, nil
}

// anthropicMessages splits out system turns, which the Messages API takes
// as a separate parameter.
func anthropicMessages(req CompletionRequest) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	if req.SystemPrompt != "" {
		system = append(system, anthropic.TextBlockParam{Text: req.SystemPrompt})
	}
	if req.JSON {
		system = append(system, anthropic.TextBlockParam{Text: "Respond with a single JSON object and nothing else."})
	}

	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return msgs, system
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &retry.StatusError{Service: "anthropic", StatusCode: apiErr.StatusCode, Message: err.Error()}
	}
	return err
}
