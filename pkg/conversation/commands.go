package conversation

import (
	"context"
	"fmt"
	"strings"
)

// HelpText lists the chat commands.
const HelpText = "Available commands: /help, /summary, /feedback, /restart, /expert"

// Commands are the recognised slash commands.
var Commands = []string{"/help", "/summary", "/feedback", "/restart", "/expert"}

// IsKnownCommand reports whether input starts with one of Commands.
func IsKnownCommand(input string) bool {
	fields := strings.Fields(strings.TrimSpace(input))
	if len(fields) == 0 {
		return false
	}
	for _, c := range Commands {
		if strings.EqualFold(fields[0], c) {
			return true
		}
	}
	return false
}

// IsCommand reports whether input is a slash command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// HandleCommand runs a slash command. handled is false for input that is
// not a known command; callers should then treat it as ordinary input.
func (e *Engine) HandleCommand(ctx context.Context, input string) (reply string, handled bool) {
	fields := strings.Fields(strings.TrimSpace(input))
	if len(fields) == 0 {
		return "", false
	}

	switch strings.ToLower(fields[0]) {
	case "/help":
		return HelpText, true
	case "/summary":
		return e.GenerateSessionSummary(ctx), true
	case "/feedback":
		return FormatFeedback(e.GenerateFeedback(ctx)), true
	case "/restart":
		return e.ResetConversation(), true
	case "/expert":
		name := ""
		if ex := e.Expert(); ex != nil {
			name = ex.Name
		}
		return fmt.Sprintf("Current expert: %s", name), true
	}
	return "", false
}

// FormatFeedback renders feedback as plain text.
func FormatFeedback(f Feedback) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", f.Summary)
	fmt.Fprintf(&b, "Duration: %s\n", FormatDuration(f.Duration))
	fmt.Fprintf(&b, "Exchanges: %d\n", f.ExchangesCount)
	fmt.Fprintf(&b, "Topics: %d\n", f.TopicsCount)
	if len(f.Recommendations.Topics) > 0 {
		fmt.Fprintf(&b, "Top topics: %s\n", strings.Join(f.Recommendations.Topics, ", "))
	}
	fmt.Fprintf(&b, "%s\n", f.Recommendations.NextSession)
	for _, r := range f.Recommendations.Resources {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	return strings.TrimRight(b.String(), "\n")
}
