// Package protocol defines the websocket messages exchanged between a
// voice session and its clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of websocket message
type MessageType string

const (
	// Server → client events
	TypeTranscript MessageType = "transcript" // Recognized speech, interim or final
	TypeResponse   MessageType = "response"   // Expert reply to one input
	TypeLevel      MessageType = "level"      // Microphone level, 0-255
	TypeState      MessageType = "state"      // Session lifecycle change
	TypeError      MessageType = "error"      // Non-fatal failure
	TypeSpeak      MessageType = "speak"      // Announces binary speech frames

	// Client → server events
	TypeInput MessageType = "input" // Typed input or slash command

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the envelope for every websocket message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a message stamped with the current time
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into v
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// TranscriptData carries recognized speech
type TranscriptData struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// ResponseData is the reply to one input
type ResponseData struct {
	Input       string   `json:"input"`
	Source      string   `json:"source"` // "typed", "voice"
	Command     bool     `json:"command,omitempty"`
	Text        string   `json:"text"`
	Emotion     string   `json:"emotion,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	FellBack    bool     `json:"fell_back,omitempty"`
	LatencyMs   int64    `json:"latency_ms,omitempty"`
}

// LevelData carries the voice-activity level
type LevelData struct {
	Level float64 `json:"level"`
}

// StateData describes the session state
type StateData struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"` // "idle", "active", "paused", "closed"
	TextOnly  bool   `json:"text_only"`
}

// SpeakData describes the binary PCM frames that follow it
type SpeakData struct {
	Format     string `json:"format"`      // "pcm16"
	SampleRate int    `json:"sample_rate"` // e.g., 24000
	Channels   int    `json:"channels"`    // 1 for mono
	DurationMs int64  `json:"duration_ms"`
}

// ErrorData reports a failure that did not end the session
type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// MetricsData are prosody measurements relative to the speaker's baseline
type MetricsData struct {
	Pitch      *float64 `json:"pitch,omitempty"`
	Rate       *float64 `json:"rate,omitempty"`
	Volume     *float64 `json:"volume,omitempty"`
	PauseRatio *float64 `json:"pause_ratio,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// InputData is one user input
type InputData struct {
	Text    string       `json:"text"`
	Metrics *MetricsData `json:"metrics,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
