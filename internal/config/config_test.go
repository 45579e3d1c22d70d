package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.Inference.Active)
	assert.Equal(t, 30*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, 0.7, cfg.Inference.Temperature)
	assert.Equal(t, 1000, cfg.Inference.MaxTokens)
	assert.Equal(t, "medium", cfg.Audio.Preset)
	assert.Equal(t, 10.0, cfg.Audio.SilenceThreshold)
	assert.Equal(t, 10, cfg.Conversation.ContextWindow)
	assert.Equal(t, "message", cfg.Store.Persist)
	assert.Len(t, cfg.Providers, len(ProviderIDs))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VOICEAGENT_INFERENCE_ACTIVE", "groq")
	t.Setenv("GROQ_API_KEY", "gsk_real")
	t.Setenv("VOICEAGENT_PROVIDERS_OPENAI_API_KEY", "sk-prefixed")
	t.Setenv("VOICEAGENT_CONVERSATION_CONTEXT_WINDOW", "4")
	t.Setenv("ELEVENLABS_API_KEY", "el-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "groq", cfg.Inference.Active)
	assert.Equal(t, "gsk_real", cfg.ProviderFor("groq").APIKey)
	assert.Equal(t, "sk-prefixed", cfg.ProviderFor("openai").APIKey)
	assert.Equal(t, 4, cfg.Conversation.ContextWindow)
	assert.Equal(t, "el-key", cfg.TTS.ElevenLabsKey)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voiceagent.yaml")
	data := []byte(`
audio:
  preset: high
  auto_pause: true
providers:
  local:
    model: mistral
store:
  driver: json
  dsn: sessions
inference:
  fallbacks: [groq, local]
tts:
  backend: elevenlabs
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "high", cfg.Audio.Preset)
	assert.True(t, cfg.Audio.AutoPause)
	assert.Equal(t, "mistral", cfg.ProviderFor("local").Model)
	assert.Equal(t, "json", cfg.Store.Driver)
	assert.Equal(t, []string{"groq", "local"}, cfg.Inference.Fallbacks)
	assert.Equal(t, "elevenlabs", cfg.TTS.Backend)
}

func TestValidate(t *testing.T) {
	t.Run("bad preset", func(t *testing.T) {
		t.Setenv("VOICEAGENT_AUDIO_PRESET", "ultra")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("bad window", func(t *testing.T) {
		t.Setenv("VOICEAGENT_CONVERSATION_CONTEXT_WINDOW", "0")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("bad tts backend", func(t *testing.T) {
		t.Setenv("VOICEAGENT_TTS_BACKEND", "espeak")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestProviderForUnknown(t *testing.T) {
	var cfg Config
	assert.Equal(t, Provider{}, cfg.ProviderFor("openai"))
}
