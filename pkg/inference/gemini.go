package inference

import (
	"context"
	"log/slog"
	"sync"

	"google.golang.org/genai"
)

// Gemini implements Completer for Google's Gemini API via the genai SDK.
// The SDK client is created lazily on first use.
type Gemini struct {
	config *Config
	logger *slog.Logger

	once      sync.Once
	client    *genai.Client
	clientErr error
}

var _ Completer = (*Gemini)(nil)

// NewGemini creates a Gemini completer.
func NewGemini(opts ...Option) *Gemini {
	cfg := newConfig(KindGemini, opts)
	return &Gemini{
		config: cfg,
		logger: cfg.Logger.With("component", "inference.gemini"),
	}
}

func (g *Gemini) sdk(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		g.client, g.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     g.config.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: g.config.client(),
			HTTPOptions: genai.HTTPOptions{
				BaseURL: g.config.BaseURL,
			},
		})
	})
	return g.client, g.clientErr
}

// Complete calls generateContent. System messages become the system
// instruction; assistant turns use the "model" role.
func (g *Gemini) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	client, err := g.sdk(ctx)
	if err != nil {
		return "", WrapError("google", err)
	}

	model := opts.Model
	if model == "" {
		model = g.config.Model
	}

	system, turns := splitSystem(messages)
	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	if len(contents) == 0 {
		// generateContent rejects an empty contents list.
		contents = append(contents, genai.NewContentFromText(system, genai.RoleUser))
		system = ""
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(opts.Temperature)),
		MaxOutputTokens: int32(opts.MaxTokens),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", WrapError("google", err)
	}
	text := resp.Text()
	if text == "" {
		return "", WrapError("google", ErrEmptyResponse)
	}
	return text, nil
}
