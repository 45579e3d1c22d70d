// Package conversation implements the per-session conversation engine:
// persona prompt, bounded history, emotion inference, learning profile,
// and response post-processing on top of an inference router.
//
// Lifecycle:
//
//	engine := conversation.NewEngine(router, conversation.DefaultConfig())
//	welcome, err := engine.InitializeConversation(ctx, expert, "Meditation", profile)
//	resp, err := engine.ProcessUserInput(ctx, "Hello, I'm stressed", metrics)
//	fb := engine.GenerateFeedback(ctx)
//	engine.End()
//
// ProcessUserInput calls are serialized. InitializeConversation,
// ResetConversation and End cancel any in-flight completion, and a
// response that arrives for a replaced session is discarded.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/teslashibe/go-voice-agent/pkg/inference"
)

// ResetMessage is returned by ResetConversation.
const ResetMessage = "Conversation reset. How can I help you today?"

// Router is the completion capability the engine depends on.
type Router interface {
	GenerateCompletion(ctx context.Context, messages []inference.Message, opts inference.Options) (inference.Completion, error)
}

// Engine owns the state of one conversation session.
type Engine struct {
	router Router
	cfg    Config
	logger *slog.Logger

	// turn serializes ProcessUserInput.
	turn sync.Mutex

	mu         sync.Mutex
	state      State
	expert     *Expert
	topic      string
	profile    UserProfile
	history    *History
	transcript []Message
	learning   *LearningProfile
	emotion    Emotion
	start      time.Time
	end        time.Time

	// generation increments whenever session state is replaced.
	generation uint64
	cancel     context.CancelFunc
}

// NewEngine creates an engine in the uninitialized state.
// Zero fields of cfg take their DefaultConfig values.
func NewEngine(router Router, cfg Config) *Engine {
	cfg.fill()
	return &Engine{
		router:   router,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "conversation.engine"),
		history:  NewHistory(cfg.ContextWindow),
		learning: NewLearningProfile(),
		emotion:  EmotionNeutral,
	}
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// InitializeConversation starts a session with expert on topic and returns
// the welcome message. A second call replaces the previous session.
func (e *Engine) InitializeConversation(ctx context.Context, expert *Expert, topic string, profile UserProfile) (string, error) {
	if expert == nil || expert.Name == "" || topic == "" {
		return "", &StateError{Op: "initialize", State: e.State(), Reason: "expert and topic are required"}
	}

	e.mu.Lock()
	e.invalidateLocked()
	e.state = StateActive
	e.expert = expert
	e.topic = topic
	e.profile = profile
	e.history = NewHistory(e.cfg.ContextWindow)
	e.history.Append(e.newMessage(RoleSystem, SystemPrompt(expert, topic), nil))
	e.transcript = nil
	e.learning.Reset()
	e.emotion = EmotionNeutral
	e.start = e.cfg.Now()
	e.end = time.Time{}
	req := e.history.Provider()
	cctx, gen := e.beginLocked(ctx)
	e.mu.Unlock()

	e.logger.Info("conversation initialized", "expert", expert.Name, "topic", topic, "user", profile.ID)

	req = append(req, inference.NewUserMessage(WelcomePrompt(expert, topic)))
	c, err := e.router.GenerateCompletion(cctx, req, e.cfg.Completion)
	if err != nil {
		return "", e.finish(gen, err, "")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return "", &StateError{Op: "initialize", State: e.state, Reason: "session replaced"}
	}
	e.cancel = nil
	e.transcript = append(e.transcript, e.newMessage(RoleAssistant, c.Text, &MessageMetadata{
		Model:    c.Model,
		Provider: c.Provider.String(),
	}))
	return c.Text, nil
}

// ProcessUserInput runs one conversational turn.
func (e *Engine) ProcessUserInput(ctx context.Context, transcript string, metrics AudioMetrics) (*Response, error) {
	e.turn.Lock()
	defer e.turn.Unlock()

	emotion := AnalyzeEmotion(metrics)
	confidence := 1.0
	if metrics.Confidence != nil {
		confidence = *metrics.Confidence
	}

	e.mu.Lock()
	if e.state != StateActive {
		st := e.state
		e.mu.Unlock()
		return nil, &StateError{Op: "process input", State: st}
	}
	e.ensureSystemLocked()
	user := e.newMessage(RoleUser, transcript, &MessageMetadata{Emotion: emotion, Confidence: confidence})
	e.history.Append(user)
	e.transcript = append(e.transcript, user)
	e.emotion = emotion

	req := e.history.Provider()
	if note := SteeringNote(emotion); note != "" {
		req = append(req, inference.NewSystemMessage(note))
	}
	cctx, gen := e.beginLocked(ctx)
	e.mu.Unlock()

	c, err := e.router.GenerateCompletion(cctx, req, e.cfg.Completion)
	if err != nil {
		return nil, e.finish(gen, err, user.ID)
	}

	e.mu.Lock()
	if gen != e.generation {
		st := e.state
		e.mu.Unlock()
		e.logger.Debug("discarding stale response", "generation", gen)
		return nil, &StateError{Op: "process input", State: st, Reason: "session replaced during completion"}
	}
	e.cancel = nil
	assistant := e.newMessage(RoleAssistant, c.Text, &MessageMetadata{
		Model:    c.Model,
		Provider: c.Provider.String(),
	})
	e.history.Append(assistant)
	e.transcript = append(e.transcript, assistant)
	e.learning.Update(transcript + " " + c.Text)
	contextLen := e.history.Len()
	e.mu.Unlock()

	if c.FellBack {
		e.logger.Info("completion served by fallback", "provider", c.Provider, "reason", c.Reason)
	}

	return &Response{
		Text:        c.Text,
		Emotion:     emotion,
		Suggestions: e.suggestions(ctx, transcript),
		Metadata: ResponseMetadata{
			ResponseTime:  e.cfg.Now(),
			ContextLength: contextLen,
			Provider:      c.Provider.String(),
			Model:         c.Model,
			FellBack:      c.FellBack,
			Latency:       c.Latency,
		},
	}, nil
}

// ResetConversation clears history and the learning profile. The engine
// stays active with the same expert and topic; the system prompt is
// re-seeded on the next turn. The transcript is kept.
func (e *Engine) ResetConversation() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidateLocked()
	e.history.Reset()
	e.learning.Reset()
	e.emotion = EmotionNeutral
	e.logger.Info("conversation reset")
	return ResetMessage
}

// End moves the engine to the ended state and cancels in-flight work.
func (e *Engine) End() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive {
		return
	}
	e.invalidateLocked()
	e.state = StateEnded
	e.end = e.cfg.Now()
}

// Duration returns the wall-clock time since InitializeConversation, frozen
// at End. Resets do not affect it.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.durationLocked()
}

func (e *Engine) durationLocked() time.Duration {
	if e.start.IsZero() {
		return 0
	}
	if !e.end.IsZero() {
		return e.end.Sub(e.start)
	}
	return e.cfg.Now().Sub(e.start)
}

// History returns the provider-facing window.
func (e *Engine) History() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Messages()
}

// Transcript returns every non-system message of the session.
func (e *Engine) Transcript() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Message(nil), e.transcript...)
}

// LearningProfile returns a copy of the keyword counters.
func (e *Engine) LearningProfile() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.learning.Snapshot()
}

// Emotion returns the most recently inferred emotion.
func (e *Engine) Emotion() Emotion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emotion
}

// Expert returns the current expert, or nil.
func (e *Engine) Expert() *Expert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expert
}

// Info returns session metadata.
func (e *Engine) Info() SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	info := SessionInfo{
		Topic:     e.topic,
		UserID:    e.profile.ID,
		StartTime: e.start,
		Duration:  e.durationLocked(),
		Exchanges: countRole(e.transcript, RoleUser),
	}
	if e.expert != nil {
		info.Expert = e.expert.Name
	}
	return info
}

// beginLocked derives a cancellable context for a provider call and
// records it so a state replacement can abort it.
func (e *Engine) beginLocked(ctx context.Context) (context.Context, uint64) {
	cctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	return cctx, e.generation
}

// invalidateLocked bumps the generation and cancels in-flight work.
func (e *Engine) invalidateLocked() {
	e.generation++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// finish converts a router error into the caller-facing error. When the
// session is unchanged, the unanswered user message (if any) is rolled
// back so roles keep alternating.
func (e *Engine) finish(gen uint64, err error, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return &StateError{Op: "completion", State: e.state, Reason: "session replaced during completion"}
	}
	e.cancel = nil
	if userID != "" {
		e.history.DropLast(userID)
		if n := len(e.transcript); n > 0 && e.transcript[n-1].ID == userID {
			e.transcript = e.transcript[:n-1]
		}
	}
	return fmt.Errorf("conversation: completion: %w", err)
}

// ensureSystemLocked re-seeds the persona prompt after a reset.
func (e *Engine) ensureSystemLocked() {
	if e.history.Len() == 0 && e.expert != nil {
		e.history.Append(e.newMessage(RoleSystem, SystemPrompt(e.expert, e.topic), nil))
	}
}

func (e *Engine) newMessage(role Role, content string, md *MessageMetadata) Message {
	return Message{
		ID:        shortuuid.New(),
		Role:      role,
		Content:   content,
		Timestamp: e.cfg.Now(),
		Metadata:  md,
	}
}

func countRole(msgs []Message, role Role) int {
	n := 0
	for _, m := range msgs {
		if m.Role == role {
			n++
		}
	}
	return n
}
