package inference

import (
	"context"
	"net/http"
	"strings"

	"github.com/teslashibe/go-voice-agent/internal/httpc"
)

const anthropicVersion = "2023-06-01"

// Anthropic implements Completer for the Anthropic Messages API.
type Anthropic struct {
	config *Config
	http   *http.Client
}

var _ Completer = (*Anthropic)(nil)

// NewAnthropic creates an Anthropic completer.
func NewAnthropic(opts ...Option) *Anthropic {
	cfg := newConfig(KindAnthropic, opts)
	return &Anthropic{config: cfg, http: cfg.client()}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete posts to /v1/messages.
func (a *Anthropic) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = a.config.Model
	}

	system, turns := splitSystem(messages)
	req := anthropicRequest{
		Model:       model,
		System:      system,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	for _, m := range turns {
		req.Messages = append(req.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	if len(req.Messages) == 0 {
		req.Messages = []anthropicMessage{{Role: string(RoleUser), Content: "Hello"}}
	}

	headers := map[string]string{
		"x-api-key":         a.config.APIKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	url := strings.TrimSuffix(a.config.BaseURL, "/") + "/v1/messages"
	if err := httpc.PostJSON(ctx, a.http, url, headers, req, &resp); err != nil {
		return "", WrapError("anthropic", err)
	}
	if len(resp.Content) == 0 {
		return "", WrapError("anthropic", ErrEmptyResponse)
	}
	return resp.Content[0].Text, nil
}
