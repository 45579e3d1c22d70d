package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
)

// Format is a transcript export format.
type Format string

const (
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
)

// ParseFormat resolves a format name or file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// FormatDuration renders d as mm:ss.
func FormatDuration(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Transcript is a session transcript with its metadata.
type Transcript struct {
	Info     SessionInfo
	Messages []Message
}

type jsonTranscript struct {
	Session struct {
		Topic     string    `json:"topic"`
		Expert    string    `json:"expert"`
		Date      time.Time `json:"date"`
		Duration  int       `json:"duration"`
		Exchanges int       `json:"exchanges"`
	} `json:"session"`
	Messages        []Message      `json:"messages"`
	LearningProfile map[string]int `json:"learning_profile,omitempty"`
}

// Export serializes the session transcript.
func (e *Engine) Export(format Format) ([]byte, error) {
	t := Transcript{Info: e.Info(), Messages: e.Transcript()}
	if format == FormatJSON {
		return t.json(e.LearningProfile())
	}
	return t.Render(format)
}

// Render serializes t in the given format.
func (t Transcript) Render(format Format) ([]byte, error) {
	switch format {
	case FormatText:
		return []byte(t.text()), nil
	case FormatJSON:
		return t.json(nil)
	case FormatMarkdown:
		return []byte(t.markdown()), nil
	case FormatHTML:
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(t.markdown()), &buf); err != nil {
			return nil, fmt.Errorf("conversation: render html: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func (t Transcript) topic() string {
	if t.Info.Topic == "" {
		return "General Discussion"
	}
	return t.Info.Topic
}

func (t Transcript) speaker(m Message) string {
	if m.Role == RoleUser {
		return "You"
	}
	if t.Info.Expert == "" {
		return "AI Expert"
	}
	return t.Info.Expert
}

func (t Transcript) text() string {
	var b strings.Builder
	b.WriteString("AI Voice Agent - Session Transcript\n")
	b.WriteString("=====================================\n\n")
	fmt.Fprintf(&b, "Topic: %s\n", t.topic())
	fmt.Fprintf(&b, "Expert: %s\n", t.Info.Expert)
	fmt.Fprintf(&b, "Date: %s\n", t.Info.StartTime.Format("2006-01-02"))
	fmt.Fprintf(&b, "Duration: %s\n\n", FormatDuration(t.Info.Duration))
	b.WriteString("Conversation:\n")
	b.WriteString("-------------\n\n")
	for _, m := range t.Messages {
		fmt.Fprintf(&b, "[%s] %s:\n%s\n\n", m.Timestamp.Format("15:04:05"), t.speaker(m), m.Content)
	}
	return b.String()
}

func (t Transcript) markdown() string {
	var b strings.Builder
	b.WriteString("# AI Voice Agent - Session Transcript\n\n")
	b.WriteString("## Session Information\n")
	fmt.Fprintf(&b, "- **Topic:** %s\n", t.topic())
	fmt.Fprintf(&b, "- **Expert:** %s\n", t.Info.Expert)
	fmt.Fprintf(&b, "- **Date:** %s\n", t.Info.StartTime.Format("2006-01-02"))
	fmt.Fprintf(&b, "- **Duration:** %s\n\n", FormatDuration(t.Info.Duration))
	b.WriteString("## Conversation\n\n")
	for _, m := range t.Messages {
		fmt.Fprintf(&b, "### **%s** - _%s_\n\n", t.speaker(m), m.Timestamp.Format("15:04:05"))
		fmt.Fprintf(&b, "%s\n\n---\n\n", m.Content)
	}
	return b.String()
}

func (t Transcript) json(profile map[string]int) ([]byte, error) {
	var doc jsonTranscript
	doc.Session.Topic = t.Info.Topic
	doc.Session.Expert = t.Info.Expert
	doc.Session.Date = t.Info.StartTime
	doc.Session.Duration = int(t.Info.Duration / time.Second)
	doc.Session.Exchanges = len(t.Messages)
	doc.Messages = t.Messages
	if doc.Messages == nil {
		doc.Messages = []Message{}
	}
	doc.LearningProfile = profile
	return json.MarshalIndent(doc, "", "  ")
}
