// Package web serves the voice agent over HTTP and websockets.
//
// Every live session gets its own hub: transcript, response, level, state
// and error events are broadcast to the session's websocket clients, and
// when a synthesizer is configured the spoken replies are streamed to them
// as binary PCM16 frames.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-voice-agent/pkg/conversation"
	"github.com/teslashibe/go-voice-agent/pkg/expert"
	"github.com/teslashibe/go-voice-agent/pkg/hub"
	"github.com/teslashibe/go-voice-agent/pkg/inference"
	"github.com/teslashibe/go-voice-agent/pkg/store"
	"github.com/teslashibe/go-voice-agent/pkg/tts"
	"github.com/teslashibe/go-voice-agent/pkg/voice"
)

// Config wires the server to its collaborators. Router and Catalog are
// required.
type Config struct {
	Router  *inference.Router
	Catalog *expert.Catalog

	// Store persists sessions. Nil keeps sessions in memory only.
	Store store.Store

	// Synthesizer speaks replies to websocket clients. Nil disables speech.
	Synthesizer tts.Provider

	Persist voice.PersistPolicy
	Engine  conversation.Config

	// AccessLog enables the fiber request logger.
	AccessLog bool

	Logger *slog.Logger
}

// Server is the HTTP API and websocket endpoint.
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger

	// ctx bounds hubs and websocket-driven turns.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*liveSession
}

// liveSession is a connected voice session and its broadcast hub.
type liveSession struct {
	session *voice.Session
	hub     *hub.Hub
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewServer creates the server and registers its routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Router == nil {
		return nil, errors.New("web: router required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("web: catalog required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "web.server"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*liveSession),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Voice Agent",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/providers", s.handleListProviders)
	api.Put("/providers/active", s.handleSetActiveProvider)
	api.Get("/experts", s.handleListExperts)
	api.Get("/coaching-options", s.handleListCoachingOptions)

	api.Get("/sessions", s.handleListSessions)
	api.Post("/sessions", s.handleCreateSession)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Post("/sessions/:id/input", s.handleInput)
	api.Post("/sessions/:id/reset", s.handleReset)
	api.Post("/sessions/:id/command", s.handleCommand)
	api.Get("/sessions/:id/feedback", s.handleFeedback)
	api.Get("/sessions/:id/transcript", s.handleTranscript)
	api.Delete("/sessions/:id", s.handleDeleteSession)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/sessions/:id", s.requireSession, websocket.New(s.handleSessionWS))

	s.app = app
	return s, nil
}

// App returns the fiber application, for tests and custom listeners.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on addr until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context, addr string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", addr)
		return s.app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown(context.Background())
	})
	return g.Wait()
}

// Shutdown disconnects every live session and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	live := make([]*liveSession, 0, len(s.sessions))
	for id, ls := range s.sessions {
		live = append(live, ls)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	var errs []error
	for _, ls := range live {
		if _, err := ls.session.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
		ls.cancel()
	}
	s.cancel()

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) lookup(id string) (*liveSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ls, ok := s.sessions[id]
	return ls, ok
}

func (s *Server) remove(id string) (*liveSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return ls, ok
}

// errorHandler renders every error as {"error": message}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
