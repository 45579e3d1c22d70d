package inference

import (
	"context"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// OpenAI implements Completer for OpenAI and OpenAI-compatible APIs
// (Groq is served by the same client with a different base URL).
type OpenAI struct {
	kind   Kind
	client *openai.Client
	config *Config
	logger *slog.Logger
}

var _ Completer = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI completer.
func NewOpenAI(opts ...Option) *OpenAI {
	return newOpenAICompatible(KindOpenAI, opts)
}

// NewGroq creates a Groq completer using the OpenAI-compatible endpoint.
func NewGroq(opts ...Option) *OpenAI {
	return newOpenAICompatible(KindGroq, opts)
}

func newOpenAICompatible(kind Kind, opts []Option) *OpenAI {
	cfg := newConfig(kind, opts)

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = cfg.client()

	return &OpenAI{
		kind:   kind,
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
		logger: cfg.Logger.With("component", "inference."+kind.String()),
	}
}

// Complete sends a chat completion request.
func (c *OpenAI) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.config.Model
	}

	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", WrapError(c.kind.String(), err)
	}
	if len(resp.Choices) == 0 {
		return "", WrapError(c.kind.String(), ErrEmptyResponse)
	}

	c.logger.Debug("completion",
		"model", model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Choices[0].Message.Content, nil
}
