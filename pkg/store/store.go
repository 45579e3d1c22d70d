// Package store persists conversation sessions, their transcripts and the
// per-utterance voice processing records.
//
// Two backends implement Store: SQLStore (SQLite, PostgreSQL via lib/pq or
// pgx, schema managed by goose) and JSONStore (one JSON file per session,
// or purely in memory).
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("store: session not found")

	// ErrUnknownDriver is returned by Open for an unsupported driver.
	ErrUnknownDriver = errors.New("store: unknown driver")
)

// Status is the persisted session status.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// SessionRecord is one conversation session.
type SessionRecord struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id,omitempty"`
	Expert         string          `json:"expert"`
	Topic          string          `json:"topic"`
	CoachingOption string          `json:"coaching_option,omitempty"`
	Status         Status          `json:"status"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        *time.Time      `json:"end_time,omitempty"`
	Duration       time.Duration   `json:"duration"`
	Exchanges      int             `json:"exchanges"`
	Summary        string          `json:"summary,omitempty"`
	Messages       []MessageRecord `json:"messages,omitempty"`
}

// MessageRecord is one transcript entry.
type MessageRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Emotion    string    `json:"emotion,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Model      string    `json:"model,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// VoiceMetadata describes one processed utterance.
type VoiceMetadata struct {
	Language   string   `json:"language,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Emotion    string   `json:"emotion,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
}

// VoiceSessionRecord is the processing record of one spoken turn.
type VoiceSessionRecord struct {
	ID             string        `json:"id"`
	SessionID      string        `json:"session_id"`
	UserID         string        `json:"user_id,omitempty"`
	Transcription  string        `json:"transcription"`
	AIResponse     string        `json:"ai_response"`
	ProcessingTime time.Duration `json:"processing_time"`
	ErrorLog       string        `json:"error_log,omitempty"`
	Metadata       VoiceMetadata `json:"metadata"`
	CreatedAt      time.Time     `json:"created_at"`
}

// SessionUpdate lists the mutable fields; nil fields are left alone.
type SessionUpdate struct {
	Status    *Status
	Summary   *string
	Duration  *time.Duration
	EndTime   *time.Time
	Exchanges *int
}

// ListOptions filters ListSessions. Sessions are returned newest first.
type ListOptions struct {
	UserID string
	Status Status
	Limit  int
}

// Store persists sessions.
type Store interface {
	CreateSession(ctx context.Context, s *SessionRecord) error
	AppendMessage(ctx context.Context, m *MessageRecord) error
	UpdateSession(ctx context.Context, id string, u SessionUpdate) error

	// GetSession returns the session with its messages in append order.
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	ListSessions(ctx context.Context, opts ListOptions) ([]*SessionRecord, error)

	SaveVoiceSession(ctx context.Context, v *VoiceSessionRecord) error
	ListVoiceSessions(ctx context.Context, sessionID string) ([]*VoiceSessionRecord, error)

	Close() error
}

func (u SessionUpdate) apply(s *SessionRecord) {
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.Summary != nil {
		s.Summary = *u.Summary
	}
	if u.Duration != nil {
		s.Duration = *u.Duration
	}
	if u.EndTime != nil {
		t := *u.EndTime
		s.EndTime = &t
	}
	if u.Exchanges != nil {
		s.Exchanges = *u.Exchanges
	}
}
