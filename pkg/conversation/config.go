package conversation

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-voice-agent/pkg/inference"
)

// DefaultContextWindow is the number of exchange pairs kept in the
// provider-facing history.
const DefaultContextWindow = 10

// Config holds engine configuration.
type Config struct {
	// ContextWindow is N: history is trimmed to the system prompt plus the
	// last 2N messages.
	ContextWindow int

	// Completion options for conversational turns.
	Completion inference.Options

	// Suggestions options for follow-up question generation.
	Suggestions inference.Options

	// Summary options for end-of-session summaries.
	Summary inference.Options

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Logger for engine events.
	Logger *slog.Logger
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ContextWindow: DefaultContextWindow,
		Completion:    inference.Options{Temperature: 0.7, MaxTokens: 500},
		Suggestions:   inference.Options{Temperature: 0.8, MaxTokens: 150},
		Summary:       inference.Options{Temperature: 0.5, MaxTokens: 500},
		Now:           time.Now,
		Logger:        slog.Default(),
	}
}

// fill replaces zero values with defaults.
func (c *Config) fill() {
	d := DefaultConfig()
	if c.ContextWindow <= 0 {
		c.ContextWindow = d.ContextWindow
	}
	if c.Completion.MaxTokens == 0 {
		c.Completion = d.Completion
	}
	if c.Suggestions.MaxTokens == 0 {
		c.Suggestions = d.Suggestions
	}
	if c.Summary.MaxTokens == 0 {
		c.Summary = d.Summary
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
