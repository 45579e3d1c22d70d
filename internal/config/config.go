// Package config loads go-voice-agent settings from defaults, an optional
// YAML file, and VOICEAGENT_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "VOICEAGENT"

// ProviderIDs lists every completion provider that can be configured.
var ProviderIDs = []string{"openai", "groq", "google", "anthropic", "huggingface", "cohere", "local"}

// providerKeyEnv maps provider ids to the conventional key variables
// honoured in addition to the prefixed form.
var providerKeyEnv = map[string]string{
	"openai":      "OPENAI_API_KEY",
	"groq":        "GROQ_API_KEY",
	"google":      "GOOGLE_API_KEY",
	"anthropic":   "ANTHROPIC_API_KEY",
	"huggingface": "HUGGINGFACE_API_KEY",
	"cohere":      "COHERE_API_KEY",
}

// Provider holds credentials and overrides for one completion provider.
type Provider struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	Inference struct {
		Active string `mapstructure:"active"`

		// Fallbacks are provider ids tried before the mock responder.
		Fallbacks []string `mapstructure:"fallbacks"`

		Timeout     time.Duration `mapstructure:"timeout"`
		Temperature float64       `mapstructure:"temperature"`
		MaxTokens   int           `mapstructure:"max_tokens"`
	} `mapstructure:"inference"`

	Providers map[string]Provider `mapstructure:"providers"`

	Audio struct {
		Preset           string  `mapstructure:"preset"`
		Backend          string  `mapstructure:"backend"`
		Device           string  `mapstructure:"device"`
		AutoPause        bool    `mapstructure:"auto_pause"`
		SilenceThreshold float64 `mapstructure:"silence_threshold"`
	} `mapstructure:"audio"`

	STT struct {
		Backend   string `mapstructure:"backend"` // whisper, stream, mock
		StreamURL string `mapstructure:"stream_url"`
		Language  string `mapstructure:"language"`
	} `mapstructure:"stt"`

	TTS struct {
		Backend string `mapstructure:"backend"` // openai, elevenlabs, chain, mock
		Voice   string `mapstructure:"voice"`
		Model   string `mapstructure:"model"`

		// ElevenLabsKey is required by the elevenlabs and chain backends.
		// The openai backend uses providers.openai.api_key.
		ElevenLabsKey string `mapstructure:"elevenlabs_api_key"`
	} `mapstructure:"tts"`

	Conversation struct {
		ContextWindow int `mapstructure:"context_window"`
	} `mapstructure:"conversation"`

	Store struct {
		Driver  string `mapstructure:"driver"` // sqlite, postgres, pgx, json, none
		DSN     string `mapstructure:"dsn"`
		Persist string `mapstructure:"persist"` // message, end
	} `mapstructure:"store"`

	Experts struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"experts"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("inference.active", "mock")
	v.SetDefault("inference.fallbacks", []string{})
	v.SetDefault("inference.timeout", 30*time.Second)
	v.SetDefault("inference.temperature", 0.7)
	v.SetDefault("inference.max_tokens", 1000)

	v.SetDefault("audio.preset", "medium")
	v.SetDefault("audio.backend", "mock")
	v.SetDefault("audio.device", "")
	v.SetDefault("audio.auto_pause", false)
	v.SetDefault("audio.silence_threshold", 10.0)

	v.SetDefault("stt.backend", "mock")
	v.SetDefault("stt.stream_url", "")
	v.SetDefault("stt.language", "en-US")

	v.SetDefault("tts.backend", "mock")
	v.SetDefault("tts.voice", "alloy")
	v.SetDefault("tts.model", "")
	v.SetDefault("tts.elevenlabs_api_key", "")

	v.SetDefault("conversation.context_window", 10)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "voiceagent.db")
	v.SetDefault("store.persist", "message")

	v.SetDefault("experts.path", "")

	for _, id := range ProviderIDs {
		v.SetDefault("providers."+id+".api_key", "")
		v.SetDefault("providers."+id+".model", "")
		v.SetDefault("providers."+id+".base_url", "")
	}
}

// New returns a viper instance with defaults and env bindings applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	_ = v.BindEnv("tts.elevenlabs_api_key", EnvPrefix+"_TTS_ELEVENLABS_API_KEY", "ELEVENLABS_API_KEY")

	for id, env := range providerKeyEnv {
		key := "providers." + id + ".api_key"
		prefixed := EnvPrefix + "_PROVIDERS_" + strings.ToUpper(id) + "_API_KEY"
		_ = v.BindEnv(key, prefixed, env)
	}
	return v
}

// Load reads configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes a prepared viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Conversation.ContextWindow < 1 {
		return fmt.Errorf("config: conversation.context_window must be >= 1, got %d", c.Conversation.ContextWindow)
	}
	switch c.Audio.Preset {
	case "high", "medium", "low":
	default:
		return fmt.Errorf("config: unknown audio.preset %q", c.Audio.Preset)
	}
	switch c.Store.Persist {
	case "message", "end":
	default:
		return fmt.Errorf("config: unknown store.persist %q", c.Store.Persist)
	}
	switch c.TTS.Backend {
	case "openai", "elevenlabs", "chain", "mock":
	default:
		return fmt.Errorf("config: unknown tts.backend %q", c.TTS.Backend)
	}
	switch c.STT.Backend {
	case "whisper", "stream", "mock":
	default:
		return fmt.Errorf("config: unknown stt.backend %q", c.STT.Backend)
	}
	if c.Inference.Timeout <= 0 {
		return fmt.Errorf("config: inference.timeout must be positive")
	}
	return nil
}

// ProviderFor returns the settings for a provider id. Missing entries
// yield a zero Provider.
func (c *Config) ProviderFor(id string) Provider {
	if c.Providers == nil {
		return Provider{}
	}
	return c.Providers[id]
}
