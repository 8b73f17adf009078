package llm

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph/retry"
)

// Default OpenAI models.
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
)

// OpenAIClient completes with the Chat Completions API and embeds with the
// Embeddings API.
type OpenAIClient struct {
	client openai.Client
	opts   options
}

// NewOpenAIClient creates a client authenticated with apiKey. SDK-level
// retries are disabled; wrap the client with WithRetry instead.
func NewOpenAIClient(apiKey string, opts ...Option) *OpenAIClient {
	o := buildOptions(DefaultOpenAIModel, opts)
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
	return &OpenAIClient{client: openai.NewClient(reqOpts...), opts: o}
}

// Complete sends req as a single chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model, maxTokens, temperature := c.opts.resolve(req)

	params := openai.ChatCompletionNewParams{
		Model:     model,
		Messages:  openAIMessages(req),
		MaxTokens: openai.Int(int64(maxTokens)),
	}
	if temperature != nil {
		params.Temperature = openai.Float(*temperature)
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{Type: "json_object"},
		}
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &retry.ParseError{Service: "openai", Message: "response has no choices"}
	}

	return &CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		Duration:     time.Since(start),
	}, nil
}

// Embed returns one vector per text, in input order.
func (c *OpenAIClient) Embed(ctx context.Context, model string, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, openAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &retry.ParseError{Service: "openai", Message: "embedding count does not match input"}
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, &retry.ParseError{Service: "openai", Message: "embedding index out of range"}
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func openAIMessages(req CompletionRequest) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return msgs
}

func openAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &retry.StatusError{Service: "openai", StatusCode: apiErr.StatusCode, Message: err.Error()}
	}
	return err
}
