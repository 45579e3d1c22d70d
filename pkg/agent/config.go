// Package agent assembles the voice agent from configuration: the provider
// registry and router, the expert catalog, the session store, and the
// speech backends. cmd/voiceagent drives it.
package agent

import (
	"github.com/teslashibe/go-voice-agent/internal/config"
	"github.com/teslashibe/go-voice-agent/pkg/inference"
)

// ConfigError reports a missing or inconsistent setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "agent: " + e.Field + ": " + e.Message
}

// Validate checks the provider and speech settings. Recognition settings
// are checked when a microphone session is built.
func Validate(cfg *config.Config) error {
	if _, err := inference.ParseKind(cfg.Inference.Active); err != nil {
		return &ConfigError{Field: "inference.active", Message: err.Error()}
	}
	for _, id := range cfg.Inference.Fallbacks {
		if _, err := inference.ParseKind(id); err != nil {
			return &ConfigError{Field: "inference.fallbacks", Message: err.Error()}
		}
	}

	openAIKey := cfg.ProviderFor("openai").APIKey
	switch cfg.TTS.Backend {
	case "openai":
		if openAIKey == "" {
			return &ConfigError{Field: "tts.backend", Message: "openai speech requires OPENAI_API_KEY"}
		}
	case "elevenlabs":
		if cfg.TTS.ElevenLabsKey == "" {
			return &ConfigError{Field: "tts.elevenlabs_api_key", Message: "ELEVENLABS_API_KEY is required for ElevenLabs speech"}
		}
	case "chain":
		if openAIKey == "" && cfg.TTS.ElevenLabsKey == "" {
			return &ConfigError{Field: "tts.backend", Message: "chain needs at least one of OPENAI_API_KEY or ELEVENLABS_API_KEY"}
		}
	}
	return nil
}

func validateRecognizer(cfg *config.Config) error {
	switch cfg.STT.Backend {
	case "whisper":
		if cfg.ProviderFor("openai").APIKey == "" {
			return &ConfigError{Field: "stt.backend", Message: "whisper requires OPENAI_API_KEY"}
		}
	case "stream":
		if cfg.STT.StreamURL == "" {
			return &ConfigError{Field: "stt.stream_url", Message: "stream recognition requires a URL"}
		}
	}
	return nil
}
