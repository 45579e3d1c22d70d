package voice

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-voice-agent/pkg/audio"
	"github.com/teslashibe/go-voice-agent/pkg/conversation"
	"github.com/teslashibe/go-voice-agent/pkg/store"
	"github.com/teslashibe/go-voice-agent/pkg/stt"
	"github.com/teslashibe/go-voice-agent/pkg/tts"
)

// Common errors returned by sessions.
var (
	ErrNotConnected     = errors.New("voice: session not connected")
	ErrAlreadyConnected = errors.New("voice: session already connected")
	ErrClosed           = errors.New("voice: session closed")
	ErrEmptyInput       = errors.New("voice: empty input")
	ErrNoAudio          = errors.New("voice: session has no audio pipeline")
)

// PersistPolicy controls when messages reach the store.
type PersistPolicy int

const (
	// PersistPerMessage writes every message as soon as its turn completes.
	PersistPerMessage PersistPolicy = iota

	// PersistAtEnd writes the transcript once, on Disconnect.
	PersistAtEnd
)

func (p PersistPolicy) String() string {
	if p == PersistAtEnd {
		return "end"
	}
	return "message"
}

// ParsePersistPolicy accepts "message" or "end"; empty means per message.
func ParsePersistPolicy(s string) (PersistPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "message", "per-message":
		return PersistPerMessage, nil
	case "end", "at-end":
		return PersistAtEnd, nil
	}
	return 0, errors.New("voice: unknown persist policy: " + s)
}

// DefaultQueueSize is the input queue capacity.
const DefaultQueueSize = 8

// Config holds session parameters.
type Config struct {
	// Expert and Topic are required.
	Expert         *conversation.Expert
	Topic          string
	CoachingOption string

	UserID   string
	UserName string

	// SpeechVoice is the synthesis voice. Empty uses the speaker default.
	SpeechVoice string

	// Language is the recognition language and the language recorded on
	// voice-session records. Default: en-US.
	Language string

	// Preset is the capture quality. Default: medium.
	Preset audio.QualityPreset

	Persist   PersistPolicy
	QueueSize int

	// Engine configures the conversation engine.
	Engine conversation.Config

	Logger *slog.Logger
}

// Option configures a session's collaborators.
type Option func(*Session)

// WithStore persists the session to st.
func WithStore(st store.Store) Option {
	return func(s *Session) { s.store = st }
}

// WithAudio captures from p and transcribes with rec. The pipeline is
// initialized on Connect and destroyed on Disconnect.
func WithAudio(p *audio.Pipeline, rec stt.Recognizer) Option {
	return func(s *Session) {
		s.pipeline = p
		s.recognizer = rec
	}
}

// WithSpeaker speaks welcome messages and responses.
func WithSpeaker(sp *tts.Speaker) Option {
	return func(s *Session) { s.speaker = sp }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.cfg.Logger = l
		}
	}
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.Expert == nil || strings.TrimSpace(c.Expert.Name) == "" {
		return errors.New("voice: expert required")
	}
	if strings.TrimSpace(c.Topic) == "" {
		return errors.New("voice: topic required")
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.Preset == "" {
		c.Preset = audio.PresetMedium
	}
	if _, err := c.Preset.Params(); err != nil {
		return err
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Engine.Logger == nil {
		c.Engine.Logger = c.Logger
	}
	return nil
}
