// Package inference routes chat completions across interchangeable AI
// providers and guarantees an answer even with no provider configured.
//
// Each provider variant is identified by a Kind and implements Completer.
// A Registry built once at startup binds kinds to descriptors, completers
// and credentials; a Router selects the active kind and falls back to the
// local Mock responder whenever the active provider is misconfigured,
// rate limited, or fails.
//
// Example usage:
//
//	reg := inference.NewRegistry(
//	    inference.Entry{Descriptor: inference.DescriptorFor(inference.KindGroq),
//	        Completer: groq, APIKey: os.Getenv("GROQ_API_KEY")},
//	)
//	router := inference.NewRouter(reg)
//	_ = router.SetActiveProvider("groq")
//
//	c, _ := router.GenerateCompletion(ctx, history, inference.DefaultOptions())
//	fmt.Println(c.Text, c.Provider, c.FellBack)
package inference

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind identifies a provider variant.
type Kind int

const (
	KindMock Kind = iota
	KindOpenAI
	KindGroq
	KindGemini
	KindAnthropic
	KindHuggingFace
	KindCohere
	KindLocal
)

var kindIDs = map[Kind]string{
	KindMock:        "mock",
	KindOpenAI:      "openai",
	KindGroq:        "groq",
	KindGemini:      "google",
	KindAnthropic:   "anthropic",
	KindHuggingFace: "huggingface",
	KindCohere:      "cohere",
	KindLocal:       "local",
}

// Kinds returns every provider kind in registry order.
func Kinds() []Kind {
	return []Kind{KindOpenAI, KindGroq, KindGemini, KindAnthropic, KindHuggingFace, KindCohere, KindLocal, KindMock}
}

// String returns the provider id.
func (k Kind) String() string {
	if id, ok := kindIDs[k]; ok {
		return id
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind resolves a provider id. "gemini" is accepted as an alias for
// "google" and "ollama" for "local".
func ParseKind(id string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "gemini":
		return KindGemini, nil
	case "ollama":
		return KindLocal, nil
	}
	for k, v := range kindIDs {
		if strings.EqualFold(v, id) {
			return k, nil
		}
	}
	return KindMock, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
}

// Completer is the single capability every provider variant implements.
type Completer interface {
	// Complete returns the assistant text for the given history.
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, messages []Message, opts Options) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	return f(ctx, messages, opts)
}

// Options are per-call generation settings.
type Options struct {
	// Model overrides the provider default when set.
	Model string

	Temperature float64
	MaxTokens   int

	// Timeout bounds a single provider call. Zero uses the router default.
	Timeout time.Duration
}

// DefaultOptions returns temperature 0.7 and 1000 max tokens.
func DefaultOptions() Options {
	return Options{
		Temperature: 0.7,
		MaxTokens:   1000,
	}
}

// Completion is the normalized result of a routed call.
type Completion struct {
	Text string

	// Provider is the kind that produced Text.
	Provider Kind

	// Model is the model that produced Text, if known.
	Model string

	// FellBack is true when the active provider was bypassed.
	FellBack bool

	// Reason describes why a fallback happened.
	Reason string

	Latency time.Duration
}
