package web

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-voice-agent/pkg/conversation"
	"github.com/teslashibe/go-voice-agent/pkg/expert"
	"github.com/teslashibe/go-voice-agent/pkg/inference"
	"github.com/teslashibe/go-voice-agent/pkg/protocol"
	"github.com/teslashibe/go-voice-agent/pkg/store"
	"github.com/teslashibe/go-voice-agent/pkg/voice"
)

// expertView is a catalog entry with its lookup id.
type expertView struct {
	ID string `json:"id"`
	expert.Entry
}

// SetActiveRequest is the body of PUT /api/providers/active.
type SetActiveRequest struct {
	ID string `json:"id"`
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	Expert         string `json:"expert"`
	Topic          string `json:"topic"`
	CoachingOption string `json:"coaching_option"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
	// Voice overrides the expert's speech voice.
	Voice string `json:"voice"`
}

// CreateSessionResponse is returned by POST /api/sessions.
type CreateSessionResponse struct {
	ID             string `json:"id"`
	Expert         string `json:"expert"`
	Topic          string `json:"topic"`
	CoachingOption string `json:"coaching_option,omitempty"`
	Welcome        string `json:"welcome"`
}

// InputRequest is the body of POST /api/sessions/:id/input.
type InputRequest struct {
	Text    string                `json:"text"`
	Metrics *protocol.MetricsData `json:"metrics,omitempty"`
}

// CommandRequest is the body of POST /api/sessions/:id/command.
type CommandRequest struct {
	Command string `json:"command"`
}

// SessionInfo describes a live session.
type SessionInfo struct {
	ID             string             `json:"id"`
	Expert         string             `json:"expert"`
	Topic          string             `json:"topic"`
	CoachingOption string             `json:"coaching_option,omitempty"`
	State          voice.State        `json:"state"`
	TextOnly       bool               `json:"text_only"`
	Exchanges      int                `json:"exchanges"`
	Latency        map[string]float64 `json:"latency_ms,omitempty"`
}

// FeedbackResponse is returned by the feedback and delete endpoints.
type FeedbackResponse struct {
	conversation.Feedback
	DurationSeconds int `json:"duration_seconds"`
}

func newFeedbackResponse(fb *conversation.Feedback) *FeedbackResponse {
	if fb == nil {
		return nil
	}
	return &FeedbackResponse{Feedback: *fb, DurationSeconds: fb.DurationSeconds()}
}

// handleHealth reports liveness and the active provider.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"provider": s.cfg.Router.Active().String(),
		"sessions": s.SessionCount(),
	})
}

// handleListProviders returns the registry with runtime status.
func (s *Server) handleListProviders(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Router.Providers())
}

// handleSetActiveProvider switches the active provider.
func (s *Server) handleSetActiveProvider(c *fiber.Ctx) error {
	var req SetActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := s.cfg.Router.SetActiveProvider(req.ID); err != nil {
		if errors.Is(err, inference.ErrUnknownProvider) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(fiber.Map{"active": s.cfg.Router.Active().String()})
}

// handleListExperts returns the expert catalog.
func (s *Server) handleListExperts(c *fiber.Ctx) error {
	var experts []expert.Entry
	if option := c.Query("option"); option != "" {
		experts = s.cfg.Catalog.ForOption(option)
	} else {
		experts = s.cfg.Catalog.Experts()
	}
	out := make([]expertView, 0, len(experts))
	for _, e := range experts {
		out = append(out, expertView{ID: e.ID(), Entry: e})
	}
	return c.JSON(out)
}

// handleListCoachingOptions returns the coaching options.
func (s *Server) handleListCoachingOptions(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Catalog.CoachingOptions())
}

// handleListSessions lists persisted sessions, or live ones when there is
// no store.
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	if s.cfg.Store == nil {
		s.mu.RLock()
		out := make([]SessionInfo, 0, len(s.sessions))
		for _, ls := range s.sessions {
			out = append(out, sessionInfo(ls.session))
		}
		s.mu.RUnlock()
		return c.JSON(out)
	}

	records, err := s.cfg.Store.ListSessions(c.UserContext(), store.ListOptions{
		UserID: c.Query("user_id"),
		Status: store.Status(c.Query("status")),
		Limit:  c.QueryInt("limit", 50),
	})
	if err != nil {
		return err
	}
	return c.JSON(records)
}

// handleCreateSession starts a session and returns its welcome message.
func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	ls, welcome, err := s.startSession(c.UserContext(), req)
	if err != nil {
		return err
	}

	cfg := ls.session.Config()
	return c.Status(fiber.StatusCreated).JSON(CreateSessionResponse{
		ID:             ls.session.ID(),
		Expert:         cfg.Expert.Name,
		Topic:          cfg.Topic,
		CoachingOption: cfg.CoachingOption,
		Welcome:        welcome,
	})
}

// handleGetSession describes a live session, or returns the persisted
// record of a finished one.
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if ls, ok := s.lookup(id); ok {
		return c.JSON(sessionInfo(ls.session))
	}
	if s.cfg.Store == nil {
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	}
	rec, err := s.cfg.Store.GetSession(c.UserContext(), id)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

// handleInput processes one typed input and returns the reply.
func (s *Server) handleInput(c *fiber.Ctx) error {
	ls, err := s.session(c)
	if err != nil {
		return err
	}

	var req InputRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	turn, err := ls.session.Submit(c.UserContext(), req.Text, audioMetrics(req.Metrics))
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(responseData(turn))
}

// handleReset restarts the conversation, keeping the transcript.
func (s *Server) handleReset(c *fiber.Ctx) error {
	ls, err := s.session(c)
	if err != nil {
		return err
	}
	turn, err := ls.session.Submit(c.UserContext(), "/restart", conversation.AudioMetrics{})
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(fiber.Map{"message": turn.Response.Text})
}

// handleCommand runs a slash command.
func (s *Server) handleCommand(c *fiber.Ctx) error {
	ls, err := s.session(c)
	if err != nil {
		return err
	}

	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	cmd := strings.TrimSpace(req.Command)
	if !strings.HasPrefix(cmd, "/") {
		cmd = "/" + cmd
	}
	if !conversation.IsKnownCommand(cmd) {
		return fiber.NewError(fiber.StatusBadRequest, "unknown command: "+cmd)
	}

	turn, err := ls.session.Submit(c.UserContext(), cmd, conversation.AudioMetrics{})
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(responseData(turn))
}

// handleFeedback returns the session feedback. A live session gets a
// fresh report; a closed one returns its final report.
func (s *Server) handleFeedback(c *fiber.Ctx) error {
	ls, err := s.session(c)
	if err != nil {
		return err
	}
	if fb := ls.session.Feedback(); fb != nil {
		return c.JSON(newFeedbackResponse(fb))
	}
	fb := ls.session.Engine().GenerateFeedback(c.UserContext())
	return c.JSON(newFeedbackResponse(&fb))
}

// handleTranscript exports the transcript in the requested format.
func (s *Server) handleTranscript(c *fiber.Ctx) error {
	ls, err := s.session(c)
	if err != nil {
		return err
	}
	format, err := conversation.ParseFormat(c.Query("format", string(conversation.FormatJSON)))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	data, err := ls.session.Export(format)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, format.ContentType())
	return c.Send(data)
}

// handleDeleteSession disconnects a session and returns its feedback.
func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")
	ls, ok := s.remove(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	}
	defer ls.cancel()

	fb, err := ls.session.Disconnect(c.UserContext())
	if err != nil {
		s.logger.Warn("session closed with errors", "session", id, "error", err)
	}
	return c.JSON(fiber.Map{
		"id":       id,
		"feedback": newFeedbackResponse(fb),
	})
}

func (s *Server) session(c *fiber.Ctx) (*liveSession, error) {
	ls, ok := s.lookup(c.Params("id"))
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, "session not found")
	}
	return ls, nil
}

// sessionError maps session errors to HTTP errors.
func sessionError(err error) error {
	switch {
	case errors.Is(err, voice.ErrEmptyInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, voice.ErrNotConnected),
		errors.Is(err, voice.ErrClosed),
		conversation.IsInvalidState(err):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return err
}

func sessionInfo(sess *voice.Session) SessionInfo {
	cfg := sess.Config()
	info := SessionInfo{
		ID:             sess.ID(),
		Expert:         cfg.Expert.Name,
		Topic:          cfg.Topic,
		CoachingOption: cfg.CoachingOption,
		State:          sess.State(),
		TextOnly:       sess.TextOnly(),
		Exchanges:      sess.Engine().Info().Exchanges,
	}
	if sess.Metrics().Turns() > 0 {
		avg := sess.Metrics().Average()
		info.Latency = map[string]float64{
			"response": ms(avg.ResponseLatency),
			"speech":   ms(avg.SpeechLatency),
			"total":    ms(avg.TotalLatency),
		}
	}
	return info
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// responseData renders a turn as a response event payload.
func responseData(t *voice.Turn) protocol.ResponseData {
	r := t.Response
	return protocol.ResponseData{
		Input:       t.Input,
		Source:      string(t.Source),
		Command:     t.Command,
		Text:        r.Text,
		Emotion:     string(r.Emotion),
		Suggestions: r.Suggestions,
		Provider:    r.Metadata.Provider,
		Model:       r.Metadata.Model,
		FellBack:    r.Metadata.FellBack,
		LatencyMs:   r.Metadata.Latency.Milliseconds(),
	}
}

func audioMetrics(m *protocol.MetricsData) conversation.AudioMetrics {
	if m == nil {
		return conversation.AudioMetrics{}
	}
	return conversation.AudioMetrics{
		Pitch:      m.Pitch,
		Rate:       m.Rate,
		Volume:     m.Volume,
		PauseRatio: m.PauseRatio,
		Confidence: m.Confidence,
	}
}
