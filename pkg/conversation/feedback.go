package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-voice-agent/pkg/inference"
)

// FallbackSummary is returned when no provider summary is available.
const FallbackSummary = "Session completed. Thank you for participating!"

const summaryPrompt = `Summarize this conversation in a structured format:
1. Main topics discussed
2. Key learning points
3. Action items or recommendations
4. Areas for improvement
5. Next steps`

const suggestionSystemPrompt = "You are a helpful assistant that suggests relevant follow-up questions."

// DefaultSuggestions are used when generated suggestions are unavailable.
var DefaultSuggestions = []string{
	"Can you explain that in more detail?",
	"What are the practical applications?",
	"How does this relate to real-world scenarios?",
}

// DefaultResources are recommended after every session.
var DefaultResources = []string{
	"Practice exercises on covered topics",
	"Review session transcript for key points",
	"Schedule follow-up session for deeper dive",
}

// Recommendations are follow-ups derived from the learning profile.
type Recommendations struct {
	Topics      []string `json:"topics"`
	NextSession string   `json:"next_session"`
	Resources   []string `json:"resources"`
}

// Feedback is the end-of-session artifact.
type Feedback struct {
	Summary         string          `json:"summary"`
	Duration        time.Duration   `json:"duration"`
	TopicsCount     int             `json:"topics_count"`
	ExchangesCount  int             `json:"exchanges_count"`
	LearningProfile map[string]int  `json:"learning_profile"`
	Recommendations Recommendations `json:"recommendations"`
}

// DurationSeconds returns Duration in whole seconds.
func (f Feedback) DurationSeconds() int {
	return int(f.Duration / time.Second)
}

// GenerateSessionSummary asks the provider to summarise the history. It
// returns FallbackSummary when the history has no user turns or the call
// did not reach a real provider.
func (e *Engine) GenerateSessionSummary(ctx context.Context) string {
	e.mu.Lock()
	msgs := e.history.Provider()
	e.mu.Unlock()

	if countProviderRole(msgs, inference.RoleUser) == 0 {
		return FallbackSummary
	}

	msgs = append(msgs, inference.NewUserMessage(summaryPrompt))
	c, err := e.router.GenerateCompletion(ctx, msgs, e.cfg.Summary)
	if err != nil || c.Provider == inference.KindMock || strings.TrimSpace(c.Text) == "" {
		if err != nil {
			e.logger.Warn("summary generation failed", "error", err)
		}
		return FallbackSummary
	}
	return c.Text
}

// GenerateFeedback builds the end-of-session feedback. It never fails.
func (e *Engine) GenerateFeedback(ctx context.Context) Feedback {
	summary := e.GenerateSessionSummary(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	return Feedback{
		Summary:         summary,
		Duration:        e.durationLocked(),
		TopicsCount:     e.learning.Len(),
		ExchangesCount:  e.history.Len() / 2,
		LearningProfile: e.learning.Snapshot(),
		Recommendations: e.recommendationsLocked(),
	}
}

// Recommendations returns follow-ups from the learning profile.
func (e *Engine) Recommendations() Recommendations {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recommendationsLocked()
}

func (e *Engine) recommendationsLocked() Recommendations {
	top := e.learning.Top(3)
	focus := e.topic
	if len(top) > 0 {
		focus = top[0]
	}
	if focus == "" {
		focus = "your chosen topic"
	}
	return Recommendations{
		Topics:      top,
		NextSession: fmt.Sprintf("Based on your interests, consider exploring advanced concepts in %s", focus),
		Resources:   append([]string(nil), DefaultResources...),
	}
}

// suggestions asks for three follow-up questions as a JSON array.
func (e *Engine) suggestions(ctx context.Context, input string) []string {
	prompt := fmt.Sprintf("Based on the conversation about %q, suggest 3 follow-up questions or topics the user might want to explore. Format as a JSON array of strings.", input)
	msgs := []inference.Message{
		inference.NewSystemMessage(suggestionSystemPrompt),
		inference.NewUserMessage(prompt),
	}

	c, err := e.router.GenerateCompletion(ctx, msgs, e.cfg.Suggestions)
	if err != nil || c.Provider == inference.KindMock {
		return append([]string(nil), DefaultSuggestions...)
	}
	if s := parseSuggestions(c.Text); len(s) > 0 {
		return s
	}
	return append([]string(nil), DefaultSuggestions...)
}

// parseSuggestions extracts a JSON string array, tolerating surrounding
// prose or code fences.
func parseSuggestions(text string) []string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil
	}
	clean := out[:0]
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) > 3 {
		clean = clean[:3]
	}
	return clean
}

func countProviderRole(msgs []inference.Message, role inference.Role) int {
	n := 0
	for _, m := range msgs {
		if m.Role == role {
			n++
		}
	}
	return n
}
