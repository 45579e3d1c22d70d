package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-voice-agent/internal/config"
	"github.com/teslashibe/go-voice-agent/pkg/audio"
	"github.com/teslashibe/go-voice-agent/pkg/audioio"
	"github.com/teslashibe/go-voice-agent/pkg/inference"
	"github.com/teslashibe/go-voice-agent/pkg/store"
	"github.com/teslashibe/go-voice-agent/pkg/stt"
	"github.com/teslashibe/go-voice-agent/pkg/tts"
)

// StoreDriverNone disables persistence.
const StoreDriverNone = "none"

// BuildRouter registers every configurable provider and activates the
// configured one. Providers without a usable key stay registered so they
// show up as unconfigured; the router answers for them with the mock.
func BuildRouter(cfg *config.Config, logger *slog.Logger) (*inference.Router, error) {
	entries := make([]inference.Entry, 0, len(config.ProviderIDs))
	for _, id := range config.ProviderIDs {
		kind, err := inference.ParseKind(id)
		if err != nil {
			return nil, &ConfigError{Field: "providers." + id, Message: err.Error()}
		}
		p := cfg.ProviderFor(id)
		entries = append(entries, inference.EntryFor(kind,
			inference.WithAPIKey(p.APIKey),
			inference.WithModel(p.Model),
			inference.WithBaseURL(p.BaseURL),
			inference.WithTimeout(cfg.Inference.Timeout),
			inference.WithLogger(logger),
		))
	}

	fallbacks := make([]inference.Kind, 0, len(cfg.Inference.Fallbacks))
	for _, id := range cfg.Inference.Fallbacks {
		kind, err := inference.ParseKind(id)
		if err != nil {
			return nil, &ConfigError{Field: "inference.fallbacks", Message: err.Error()}
		}
		fallbacks = append(fallbacks, kind)
	}

	router := inference.NewRouter(inference.NewRegistry(entries...),
		inference.WithFallbacks(fallbacks...),
		inference.WithCallTimeout(cfg.Inference.Timeout),
		inference.WithRouterLogger(logger),
	)

	active := cfg.Inference.Active
	if err := router.SetActiveProvider(active); err != nil {
		logger.Warn("cannot activate provider, using mock", "provider", active, "error", err)
		return router, nil
	}
	for _, p := range router.Providers() {
		if p.Active && !p.Configured {
			logger.Warn("provider has no usable API key, replies will come from fallbacks", "provider", p.ID)
		}
	}
	return router, nil
}

// OpenStore opens the configured store. The "none" driver returns nil.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if strings.EqualFold(cfg.Store.Driver, StoreDriverNone) {
		return nil, nil
	}
	return store.Open(ctx, store.Config{
		Driver:  cfg.Store.Driver,
		DSN:     cfg.Store.DSN,
		Migrate: true,
		Logger:  logger,
	})
}

// BuildSynthesizer creates the configured speech provider. The chain
// backend tries ElevenLabs first and falls back to OpenAI.
func BuildSynthesizer(cfg *config.Config, logger *slog.Logger) (tts.Provider, error) {
	openAIKey := cfg.ProviderFor("openai").APIKey

	base := func(key string) []tts.Option {
		opts := []tts.Option{tts.WithAPIKey(key), tts.WithLogger(logger)}
		if cfg.TTS.Model != "" {
			opts = append(opts, tts.WithModel(cfg.TTS.Model))
		}
		return opts
	}
	openAI := func() (tts.Provider, error) {
		opts := base(openAIKey)
		if cfg.TTS.Voice != "" {
			opts = append(opts, tts.WithVoice(cfg.TTS.Voice))
		}
		return tts.NewOpenAI(opts...)
	}
	elevenLabs := func() (tts.Provider, error) {
		return tts.NewElevenLabs(base(cfg.TTS.ElevenLabsKey)...)
	}

	switch cfg.TTS.Backend {
	case "openai":
		return openAI()
	case "elevenlabs":
		return elevenLabs()
	case "chain":
		var providers []tts.Provider
		if cfg.TTS.ElevenLabsKey != "" {
			p, err := elevenLabs()
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		}
		if openAIKey != "" {
			p, err := openAI()
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		}
		return tts.NewChainWithLogger(logger, providers...)
	default:
		return tts.NewMock(), nil
	}
}

// BuildRecognizer creates the configured speech recognizer.
func BuildRecognizer(cfg *config.Config, logger *slog.Logger) (stt.Recognizer, error) {
	switch cfg.STT.Backend {
	case "whisper":
		wc := stt.DefaultWhisperConfig()
		p := cfg.ProviderFor("openai")
		wc.APIKey = p.APIKey
		wc.BaseURL = p.BaseURL
		wc.Logger = logger
		return stt.NewWhisper(wc), nil
	case "stream":
		sc := stt.DefaultStreamConfig()
		sc.URL = cfg.STT.StreamURL
		sc.Logger = logger
		return stt.NewStream(sc), nil
	case "mock", "":
		return stt.NewMock(), nil
	}
	return nil, &ConfigError{Field: "stt.backend", Message: "unknown backend " + cfg.STT.Backend}
}

// BuildPipeline creates the capture pipeline for the configured device.
func BuildPipeline(cfg *config.Config, logger *slog.Logger) (*audio.Pipeline, error) {
	backend, err := audioio.ParseBackend(cfg.Audio.Backend)
	if err != nil {
		return nil, &ConfigError{Field: "audio.backend", Message: err.Error()}
	}
	opts := []audio.Option{
		audio.WithBackend(backend, cfg.Audio.Device),
		audio.WithLogger(logger),
	}
	if cfg.Audio.AutoPause {
		opts = append(opts, audio.WithAutoPause(cfg.Audio.SilenceThreshold))
	}
	return audio.NewPipeline(audio.DefaultConfig(), opts...), nil
}
