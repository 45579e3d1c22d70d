package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-voice-agent/internal/config"
	"github.com/teslashibe/go-voice-agent/pkg/audio"
	"github.com/teslashibe/go-voice-agent/pkg/audioio"
	"github.com/teslashibe/go-voice-agent/pkg/conversation"
	"github.com/teslashibe/go-voice-agent/pkg/expert"
	"github.com/teslashibe/go-voice-agent/pkg/inference"
	"github.com/teslashibe/go-voice-agent/pkg/store"
	"github.com/teslashibe/go-voice-agent/pkg/tts"
	"github.com/teslashibe/go-voice-agent/pkg/voice"
	"github.com/teslashibe/go-voice-agent/pkg/web"
)

// App owns the shared components. Sessions are created per conversation
// on top of them.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	router  *inference.Router
	catalog *expert.Catalog
	store   store.Store
	synth   tts.Provider
	persist voice.PersistPolicy
}

// New validates cfg and creates an uninitialized app.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("agent: config required")
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	persist, err := voice.ParsePersistPolicy(cfg.Store.Persist)
	if err != nil {
		return nil, &ConfigError{Field: "store.persist", Message: err.Error()}
	}
	return &App{
		cfg:     cfg,
		logger:  logger.With("component", "agent"),
		persist: persist,
	}, nil
}

// Init builds the router, catalog, store and synthesizer.
func (a *App) Init(ctx context.Context) error {
	router, err := BuildRouter(a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.router = router

	a.catalog = expert.Default()
	if path := a.cfg.Experts.Path; path != "" {
		if err := a.catalog.LoadFile(path); err != nil {
			return err
		}
		a.logger.Info("expert catalog loaded", "path", path, "experts", len(a.catalog.Experts()))
	}

	if a.store, err = OpenStore(ctx, a.cfg, a.logger); err != nil {
		return err
	}

	if a.synth, err = BuildSynthesizer(a.cfg, a.logger); err != nil {
		a.Shutdown()
		return err
	}

	a.logger.Info("agent initialized",
		"provider", a.router.Active(),
		"store", a.cfg.Store.Driver,
		"tts", a.cfg.TTS.Backend,
		"persist", a.persist)
	return nil
}

// Router returns the provider router.
func (a *App) Router() *inference.Router { return a.router }

// Catalog returns the expert catalog.
func (a *App) Catalog() *expert.Catalog { return a.catalog }

// Store returns the session store, or nil when persistence is off.
func (a *App) Store() store.Store { return a.store }

// Synthesizer returns the speech provider.
func (a *App) Synthesizer() tts.Provider { return a.synth }

// EngineConfig maps the inference settings onto the conversation engine.
func (a *App) EngineConfig() conversation.Config {
	ec := conversation.DefaultConfig()
	ec.ContextWindow = a.cfg.Conversation.ContextWindow
	ec.Completion.Temperature = a.cfg.Inference.Temperature
	if a.cfg.Inference.MaxTokens > 0 {
		ec.Completion.MaxTokens = a.cfg.Inference.MaxTokens
	}
	ec.Completion.Timeout = a.cfg.Inference.Timeout
	ec.Logger = a.logger
	return ec
}

// Serve runs the HTTP API until ctx is done. The server speaks replies
// only when a real speech backend is configured.
func (a *App) Serve(ctx context.Context, addr string, accessLog bool) error {
	if addr == "" {
		addr = a.cfg.HTTP.Addr
	}
	var synth tts.Provider
	if a.cfg.TTS.Backend != "mock" {
		synth = a.synth
	}
	srv, err := web.NewServer(web.Config{
		Router:      a.router,
		Catalog:     a.catalog,
		Store:       a.store,
		Synthesizer: synth,
		Persist:     a.persist,
		Engine:      a.EngineConfig(),
		AccessLog:   accessLog,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx, addr)
}

// ChatOptions selects the expert and the local devices of a terminal
// session.
type ChatOptions struct {
	Expert         string
	Topic          string
	CoachingOption string
	UserID         string
	UserName       string

	// Mic captures from the microphone and transcribes with the
	// configured recognizer.
	Mic bool

	// Speak plays replies through the speakers.
	Speak bool
}

// NewSession creates an unconnected session for a terminal chat.
func (a *App) NewSession(opts ChatOptions) (*voice.Session, error) {
	entry, err := a.catalog.Get(opts.Expert)
	if err != nil {
		return nil, err
	}

	topic := strings.TrimSpace(opts.Topic)
	if opts.CoachingOption != "" {
		opt, err := a.catalog.CoachingOption(opts.CoachingOption)
		if err != nil {
			return nil, err
		}
		opts.CoachingOption = opt.Name
		if topic == "" {
			topic = opt.Name
		}
	}

	sessOpts := []voice.Option{voice.WithLogger(a.logger)}
	if a.store != nil {
		sessOpts = append(sessOpts, voice.WithStore(a.store))
	}

	if opts.Mic {
		if err := validateRecognizer(a.cfg); err != nil {
			return nil, err
		}
		rec, err := BuildRecognizer(a.cfg, a.logger)
		if err != nil {
			return nil, err
		}
		pipeline, err := BuildPipeline(a.cfg, a.logger)
		if err != nil {
			return nil, err
		}
		sessOpts = append(sessOpts, voice.WithAudio(pipeline, rec))
	}

	if opts.Speak {
		player, err := a.newPlayer()
		if err != nil {
			return nil, err
		}
		sessOpts = append(sessOpts, voice.WithSpeaker(tts.NewSpeaker(a.synth, player, a.logger)))
	}

	return voice.New(a.router, voice.Config{
		Expert:         &entry.Expert,
		Topic:          topic,
		CoachingOption: opts.CoachingOption,
		UserID:         opts.UserID,
		UserName:       opts.UserName,
		SpeechVoice:    entry.SpeechVoice,
		Language:       a.cfg.STT.Language,
		Preset:         audio.QualityPreset(a.cfg.Audio.Preset),
		Persist:        a.persist,
		Engine:         a.EngineConfig(),
	}, sessOpts...)
}

func (a *App) newPlayer() (*audio.Player, error) {
	backend, err := audioio.ParseBackend(a.cfg.Audio.Backend)
	if err != nil {
		return nil, &ConfigError{Field: "audio.backend", Message: err.Error()}
	}
	ac := audioio.DefaultConfig()
	ac.Backend = backend
	ac.Device = a.cfg.Audio.Device
	sink, err := audioio.NewSink(ac, a.logger)
	if err != nil {
		return nil, fmt.Errorf("agent: open speakers: %w", err)
	}
	return audio.NewPlayer(sink, a.logger), nil
}

// Shutdown releases the store and the synthesizer.
func (a *App) Shutdown() {
	if a.synth != nil {
		if err := a.synth.Close(); err != nil {
			a.logger.Warn("failed to close synthesizer", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", "error", err)
		}
	}
}
