package web

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voice-agent/pkg/audio"
	"github.com/teslashibe/go-voice-agent/pkg/audioio"
	"github.com/teslashibe/go-voice-agent/pkg/conversation"
	"github.com/teslashibe/go-voice-agent/pkg/expert"
	"github.com/teslashibe/go-voice-agent/pkg/hub"
	"github.com/teslashibe/go-voice-agent/pkg/protocol"
	"github.com/teslashibe/go-voice-agent/pkg/stt"
	"github.com/teslashibe/go-voice-agent/pkg/tts"
	"github.com/teslashibe/go-voice-agent/pkg/voice"
)

const localsSession = "session"

// startSession resolves the expert, connects a voice session and
// registers it.
func (s *Server) startSession(ctx context.Context, req CreateSessionRequest) (*liveSession, string, error) {
	if strings.TrimSpace(req.Expert) == "" {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, "expert required")
	}
	entry, err := s.cfg.Catalog.Get(req.Expert)
	if errors.Is(err, expert.ErrNotFound) {
		return nil, "", fiber.NewError(fiber.StatusNotFound, err.Error()+": "+req.Expert)
	}
	if err != nil {
		return nil, "", err
	}

	if req.CoachingOption != "" {
		opt, err := s.cfg.Catalog.CoachingOption(req.CoachingOption)
		if err != nil {
			return nil, "", fiber.NewError(fiber.StatusBadRequest, "unknown coaching option: "+req.CoachingOption)
		}
		req.CoachingOption = opt.Name
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = req.CoachingOption
	}
	if topic == "" {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, "topic required")
	}

	speechVoice := entry.SpeechVoice
	if req.Voice != "" {
		speechVoice = req.Voice
	}

	h := hub.New("session", s.cfg.Logger)
	hctx, hcancel := context.WithCancel(s.ctx)

	opts := []voice.Option{voice.WithLogger(s.cfg.Logger)}
	if s.cfg.Store != nil {
		opts = append(opts, voice.WithStore(s.cfg.Store))
	}
	if s.cfg.Synthesizer != nil {
		player := audio.NewPlayer(newHubSink(h), s.cfg.Logger)
		opts = append(opts, voice.WithSpeaker(tts.NewSpeaker(s.cfg.Synthesizer, player, s.cfg.Logger)))
	}

	sess, err := voice.New(s.cfg.Router, voice.Config{
		Expert:         &entry.Expert,
		Topic:          topic,
		CoachingOption: req.CoachingOption,
		UserID:         req.UserID,
		UserName:       req.UserName,
		SpeechVoice:    speechVoice,
		Persist:        s.cfg.Persist,
		Engine:         s.cfg.Engine,
	}, opts...)
	if err != nil {
		hcancel()
		return nil, "", fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ls := &liveSession{session: sess, hub: h, ctx: hctx, cancel: hcancel}
	s.bindEvents(ls)
	go h.Run(hctx)

	welcome, err := sess.Connect(ctx)
	if err != nil {
		hcancel()
		return nil, "", err
	}

	s.mu.Lock()
	s.sessions[sess.ID()] = ls
	s.mu.Unlock()

	s.logger.Info("session started",
		"session", sess.ID(),
		"expert", entry.Name,
		"topic", topic,
		"speech", s.cfg.Synthesizer != nil)
	return ls, welcome, nil
}

// bindEvents forwards session callbacks to the session hub.
func (s *Server) bindEvents(ls *liveSession) {
	sess, h := ls.session, ls.hub

	sess.OnTranscript = func(text string, isFinal bool) {
		s.broadcast(h, func() (*protocol.Message, error) {
			return protocol.NewTranscriptMessage(text, isFinal)
		})
	}
	sess.OnResponse = func(t *voice.Turn) {
		s.broadcast(h, func() (*protocol.Message, error) {
			return protocol.NewResponseMessage(responseData(t))
		})
	}
	sess.OnLevel = func(level float64) {
		s.broadcast(h, func() (*protocol.Message, error) {
			return protocol.NewLevelMessage(level)
		})
	}
	sess.OnStateChange = func(st voice.State) {
		s.broadcast(h, func() (*protocol.Message, error) {
			return protocol.NewStateMessage(sess.ID(), string(st), sess.TextOnly())
		})
	}
	sess.OnError = func(err error) {
		s.broadcast(h, func() (*protocol.Message, error) {
			return protocol.NewErrorMessage(errorCode(err), err)
		})
	}
}

func (s *Server) broadcast(h *hub.Hub, build func() (*protocol.Message, error)) {
	msg, err := build()
	if err != nil {
		s.logger.Warn("failed to build event", "error", err)
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		s.logger.Warn("failed to encode event", "error", err)
		return
	}
	h.Broadcast(hub.NewJSONMessage(data))
}

// errorCode classifies session errors for clients.
func errorCode(err error) string {
	switch {
	case errors.Is(err, tts.ErrSynthesis):
		return "synthesis"
	case errors.Is(err, stt.ErrRecognition):
		return "recognition"
	case errors.Is(err, audioio.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, voice.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, voice.ErrClosed), errors.Is(err, voice.ErrNotConnected):
		return "session_closed"
	case conversation.IsInvalidState(err):
		return "invalid_state"
	}
	return "internal"
}

// requireSession rejects websocket upgrades for unknown sessions.
func (s *Server) requireSession(c *fiber.Ctx) error {
	ls, err := s.session(c)
	if err != nil {
		return err
	}
	c.Locals(localsSession, ls)
	return c.Next()
}

// handleSessionWS attaches a websocket client to a session hub.
func (s *Server) handleSessionWS(conn *websocket.Conn) {
	ls, ok := conn.Locals(localsSession).(*liveSession)
	if !ok {
		conn.Close()
		return
	}

	client, err := hub.NewClient(ls.hub, conn)
	if err != nil {
		conn.Close()
		return
	}
	client.OnMessage = func(data []byte) {
		s.handleInbound(ls, client, data)
	}

	if msg, err := protocol.NewStateMessage(ls.session.ID(), string(ls.session.State()), ls.session.TextOnly()); err == nil {
		if data, err := msg.Bytes(); err == nil {
			client.Send(hub.NewJSONMessage(data))
		}
	}

	client.Run()
}

// handleInbound handles one client message. Input runs a turn whose
// response is broadcast to every client; failures go to the sender only.
func (s *Server) handleInbound(ls *liveSession, client *hub.Client, data []byte) {
	reply := func(msg *protocol.Message, err error) {
		if err != nil {
			return
		}
		if b, err := msg.Bytes(); err == nil {
			client.Send(hub.NewJSONMessage(b))
		}
	}

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		reply(protocol.NewErrorMessage("bad_message", err))
		return
	}

	switch msg.Type {
	case protocol.TypeInput:
		in, err := msg.GetInputData()
		if err != nil {
			reply(protocol.NewErrorMessage("bad_message", err))
			return
		}
		if _, err := ls.session.Submit(ls.ctx, in.Text, audioMetrics(in.Metrics)); err != nil {
			reply(protocol.NewErrorMessage(errorCode(err), err))
		}

	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			reply(protocol.NewErrorMessage("bad_message", err))
			return
		}
		reply(protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli()))

	default:
		reply(protocol.NewErrorMessage("unsupported", errors.New("unsupported message type: "+string(msg.Type))))
	}
}
