package conversation

import (
	"time"

	"github.com/teslashibe/go-voice-agent/pkg/inference"
)

// Role identifies the author of a message.
type Role = inference.Role

// Message roles.
const (
	RoleSystem    = inference.RoleSystem
	RoleUser      = inference.RoleUser
	RoleAssistant = inference.RoleAssistant
)

// MessageMetadata is optional per-message detail.
type MessageMetadata struct {
	Emotion    Emotion `json:"emotion,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Model      string  `json:"model,omitempty"`
	Provider   string  `json:"provider,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// Expert is an immutable persona descriptor.
type Expert struct {
	Name          string   `json:"name" yaml:"name"`
	Expertise     []string `json:"expertise" yaml:"expertise"`
	Personality   string   `json:"personality" yaml:"personality"`
	Voice         string   `json:"voice" yaml:"voice"`
	Languages     []string `json:"languages" yaml:"languages"`
	ResponseStyle string   `json:"response_style,omitempty" yaml:"response_style"`
}

// UserProfile identifies the person in the session.
type UserProfile struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// AudioMetrics are prosody measurements relative to the speaker's
// baseline (1.0 is typical). Nil fields are unknown.
type AudioMetrics struct {
	Pitch      *float64 `json:"pitch,omitempty"`
	Rate       *float64 `json:"rate,omitempty"`
	Volume     *float64 `json:"volume,omitempty"`
	PauseRatio *float64 `json:"pause_ratio,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Metric returns a pointer to v for building AudioMetrics literals.
func Metric(v float64) *float64 {
	return &v
}

// ResponseMetadata describes how a response was produced.
type ResponseMetadata struct {
	ResponseTime  time.Time     `json:"response_time"`
	ContextLength int           `json:"context_length"`
	Provider      string        `json:"provider"`
	Model         string        `json:"model,omitempty"`
	FellBack      bool          `json:"fell_back"`
	Latency       time.Duration `json:"latency"`
}

// Response is returned for every processed user input.
type Response struct {
	Text        string           `json:"text"`
	Emotion     Emotion          `json:"emotion"`
	Suggestions []string         `json:"suggestions"`
	Metadata    ResponseMetadata `json:"metadata"`
}

// State is the engine lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "uninitialized"
	}
}

// SessionInfo is the metadata embedded in exports and summaries.
type SessionInfo struct {
	Expert    string        `json:"expert"`
	Topic     string        `json:"topic"`
	UserID    string        `json:"user_id,omitempty"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Exchanges int           `json:"exchanges"`
}
