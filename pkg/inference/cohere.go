package inference

import (
	"context"
	"net/http"
	"strings"

	"github.com/teslashibe/go-voice-agent/internal/httpc"
)

// Cohere implements Completer for the Cohere chat API.
type Cohere struct {
	config *Config
	http   *http.Client
}

var _ Completer = (*Cohere)(nil)

// NewCohere creates a Cohere completer.
func NewCohere(opts ...Option) *Cohere {
	cfg := newConfig(KindCohere, opts)
	return &Cohere{config: cfg, http: cfg.client()}
}

type cohereTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type cohereRequest struct {
	Message     string       `json:"message"`
	Model       string       `json:"model"`
	Temperature float64      `json:"temperature"`
	Preamble    string       `json:"preamble,omitempty"`
	ChatHistory []cohereTurn `json:"chat_history,omitempty"`
}

type cohereResponse struct {
	Text string `json:"text"`
}

var cohereRoles = map[Role]string{
	RoleUser:      "USER",
	RoleAssistant: "CHATBOT",
}

// Complete posts to /v1/chat. The final message is the prompt; earlier
// turns go in chat_history.
func (c *Cohere) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.config.Model
	}

	system, turns := splitSystem(messages)
	req := cohereRequest{
		Model:       model,
		Temperature: opts.Temperature,
		Preamble:    system,
	}
	if n := len(turns); n > 0 {
		req.Message = turns[n-1].Content
		for _, m := range turns[:n-1] {
			req.ChatHistory = append(req.ChatHistory, cohereTurn{Role: cohereRoles[m.Role], Message: m.Content})
		}
	} else {
		req.Message = system
		req.Preamble = ""
	}

	headers := map[string]string{"Authorization": "Bearer " + c.config.APIKey}

	var resp cohereResponse
	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/v1/chat"
	if err := httpc.PostJSON(ctx, c.http, url, headers, req, &resp); err != nil {
		return "", WrapError("cohere", err)
	}
	return resp.Text, nil
}
