package inference

import (
	"context"
	"net/http"
	"strings"

	"github.com/teslashibe/go-voice-agent/internal/httpc"
)

// HuggingFace implements Completer for the hosted Inference API. The API
// is single-prompt: only the latest message is sent.
type HuggingFace struct {
	config *Config
	http   *http.Client
}

var _ Completer = (*HuggingFace)(nil)

// NewHuggingFace creates a HuggingFace completer.
func NewHuggingFace(opts ...Option) *HuggingFace {
	cfg := newConfig(KindHuggingFace, opts)
	return &HuggingFace{config: cfg, http: cfg.client()}
}

type hfRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		Temperature float64 `json:"temperature"`
		MaxLength   int     `json:"max_length"`
	} `json:"parameters"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// Complete posts to /models/{model}.
func (h *HuggingFace) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = h.config.Model
	}

	var req hfRequest
	req.Inputs = LastContent(messages)
	req.Parameters.Temperature = opts.Temperature
	req.Parameters.MaxLength = opts.MaxTokens

	headers := map[string]string{"Authorization": "Bearer " + h.config.APIKey}

	var resp []hfGeneration
	url := strings.TrimSuffix(h.config.BaseURL, "/") + "/models/" + model
	if err := httpc.PostJSON(ctx, h.http, url, headers, req, &resp); err != nil {
		return "", WrapError("huggingface", err)
	}
	if len(resp) == 0 {
		return "", WrapError("huggingface", ErrEmptyResponse)
	}
	return resp[0].GeneratedText, nil
}
