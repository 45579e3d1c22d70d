package inference

import (
	"context"
	"net/http"
	"strings"

	"github.com/teslashibe/go-voice-agent/internal/httpc"
)

// Ollama implements Completer for a local Ollama server.
type Ollama struct {
	config *Config
	http   *http.Client
}

var _ Completer = (*Ollama)(nil)

// NewOllama creates a local completer.
func NewOllama(opts ...Option) *Ollama {
	cfg := newConfig(KindLocal, opts)
	return &Ollama{config: cfg, http: cfg.client()}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
}

// Complete posts to /api/chat with streaming disabled.
func (o *Ollama) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = o.config.Model
	}

	req := ollamaRequest{Model: model}
	req.Options.Temperature = opts.Temperature
	req.Options.NumPredict = opts.MaxTokens
	for _, m := range messages {
		req.Messages = append(req.Messages, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}

	var resp ollamaResponse
	url := strings.TrimSuffix(o.config.BaseURL, "/") + "/api/chat"
	if err := httpc.PostJSON(ctx, o.http, url, nil, req, &resp); err != nil {
		return "", WrapError("local", err)
	}
	return resp.Message.Content, nil
}
