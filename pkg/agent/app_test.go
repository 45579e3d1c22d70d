package agent

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voice-agent/internal/config"
	"github.com/teslashibe/go-voice-agent/pkg/conversation"
	"github.com/teslashibe/go-voice-agent/pkg/expert"
	"github.com/teslashibe/go-voice-agent/pkg/inference"
	"github.com/teslashibe/go-voice-agent/pkg/store"
	"github.com/teslashibe/go-voice-agent/pkg/tts"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, env := range []string{"OPENAI_API_KEY", "GROQ_API_KEY", "GOOGLE_API_KEY", "ANTHROPIC_API_KEY", "HUGGINGFACE_API_KEY", "COHERE_API_KEY", "ELEVENLABS_API_KEY"} {
		t.Setenv(env, "")
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.Driver = store.DriverMemory
	return cfg
}

func withKey(cfg *config.Config, id, key string) {
	if cfg.Providers == nil {
		cfg.Providers = map[string]config.Provider{}
	}
	p := cfg.Providers[id]
	p.APIKey = key
	cfg.Providers[id] = p
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*config.Config)
		field string
	}{
		{name: "defaults"},
		{name: "unknown active", edit: func(c *config.Config) { c.Inference.Active = "skynet" }, field: "inference.active"},
		{name: "unknown fallback", edit: func(c *config.Config) { c.Inference.Fallbacks = []string{"groq", "nope"} }, field: "inference.fallbacks"},
		{name: "openai speech without key", edit: func(c *config.Config) { c.TTS.Backend = "openai" }, field: "tts.backend"},
		{name: "elevenlabs without key", edit: func(c *config.Config) { c.TTS.Backend = "elevenlabs" }, field: "tts.elevenlabs_api_key"},
		{name: "chain without keys", edit: func(c *config.Config) { c.TTS.Backend = "chain" }, field: "tts.backend"},
		{name: "chain with one key", edit: func(c *config.Config) {
			c.TTS.Backend = "chain"
			c.TTS.ElevenLabsKey = "el-key"
		}},
		{name: "openai speech with key", edit: func(c *config.Config) {
			c.TTS.Backend = "openai"
			withKey(c, "openai", "sk-test")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			if tt.edit != nil {
				tt.edit(cfg)
			}
			err := Validate(cfg)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestBuildRouter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Inference.Active = "groq"
	cfg.Inference.Fallbacks = []string{"local"}
	withKey(cfg, "groq", "gsk_real")

	router, err := BuildRouter(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, inference.KindGroq, router.Active())

	status := map[string]inference.ProviderStatus{}
	for _, p := range router.Providers() {
		status[p.ID] = p
	}
	for _, id := range append(config.ProviderIDs, "mock") {
		assert.Contains(t, status, id)
	}
	assert.True(t, status["groq"].Configured)
	assert.True(t, status["groq"].Active)
	assert.False(t, status["openai"].Configured)
	assert.True(t, status["local"].Configured, "local needs no key")
}

func TestBuildRouterKeepsMockOnBadActive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Inference.Active = "mock"
	router, err := BuildRouter(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, inference.KindMock, router.Active())

	c, err := router.GenerateCompletion(context.Background(), []inference.Message{
		{Role: inference.RoleUser, Content: "hello"},
	}, inference.DefaultOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, c.Text)
}

func TestBuildSynthesizer(t *testing.T) {
	cfg := testConfig(t)
	synth, err := BuildSynthesizer(cfg, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &tts.Mock{}, synth)

	cfg.TTS.Backend = "chain"
	cfg.TTS.ElevenLabsKey = "el-key"
	withKey(cfg, "openai", "sk-test")
	synth, err = BuildSynthesizer(cfg, quietLogger())
	require.NoError(t, err)
	chain, ok := synth.(*tts.Chain)
	require.True(t, ok)
	require.Len(t, chain.Providers(), 2)
	assert.IsType(t, &tts.ElevenLabs{}, chain.Providers()[0])
	assert.IsType(t, &tts.OpenAI{}, chain.Providers()[1])
}

func TestBuildRecognizer(t *testing.T) {
	cfg := testConfig(t)
	rec, err := BuildRecognizer(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "mock", rec.Name())

	cfg.STT.Backend = "whisper"
	assert.Error(t, validateRecognizer(cfg))
	withKey(cfg, "openai", "sk-test")
	require.NoError(t, validateRecognizer(cfg))
	rec, err = BuildRecognizer(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "whisper", rec.Name())

	cfg.STT.Backend = "stream"
	var ce *ConfigError
	require.ErrorAs(t, validateRecognizer(cfg), &ce)
	assert.Equal(t, "stt.stream_url", ce.Field)
	cfg.STT.StreamURL = "ws://127.0.0.1:9/stt"
	rec, err = BuildRecognizer(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "stream", rec.Name())
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	cfg.Store.Driver = StoreDriverNone
	st, err := OpenStore(ctx, cfg, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, st)

	cfg.Store.Driver = store.DriverSQLite
	cfg.Store.DSN = filepath.Join(t.TempDir(), "agent.db")
	st, err = OpenStore(ctx, cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sql, ok := st.(*store.SQLStore)
	require.True(t, ok)
	version, err := sql.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Positive(t, version, "migrations applied on open")
}

func TestAppChatSession(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Conversation.ContextWindow = 4
	cfg.Inference.Temperature = 0.2

	app, err := New(cfg, quietLogger())
	require.NoError(t, err)
	require.NoError(t, app.Init(ctx))
	t.Cleanup(app.Shutdown)

	assert.Equal(t, inference.KindMock, app.Router().Active())
	assert.Len(t, app.Catalog().Experts(), 5)
	require.NotNil(t, app.Store())

	ec := app.EngineConfig()
	assert.Equal(t, 4, ec.ContextWindow)
	assert.InDelta(t, 0.2, ec.Completion.Temperature, 1e-9)

	_, err = app.NewSession(ChatOptions{Expert: "nobody"})
	assert.ErrorIs(t, err, expert.ErrNotFound)
	_, err = app.NewSession(ChatOptions{Expert: "maya-patel", CoachingOption: "juggling"})
	assert.Error(t, err)

	sess, err := app.NewSession(ChatOptions{
		Expert:         "maya-patel",
		CoachingOption: "meditation & wellness",
		UserID:         "u-9",
		Speak:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Meditation & Wellness", sess.Config().Topic)
	assert.Equal(t, "Meditation & Wellness", sess.Config().CoachingOption)

	welcome, err := sess.Connect(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, welcome)

	turn, err := sess.Submit(ctx, "I want to relax", conversation.AudioMetrics{})
	require.NoError(t, err)
	assert.Equal(t, "mock", turn.Response.Metadata.Provider)

	_, err = sess.Disconnect(ctx)
	require.NoError(t, err)

	rec, err := app.Store().GetSession(ctx, sess.ID())
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, rec.Status)
	assert.Equal(t, "u-9", rec.UserID)
}

func TestNewRejectsBadPersist(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Persist = "sometimes"
	_, err := New(cfg, nil)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "store.persist", ce.Field)

	_, err = New(nil, nil)
	assert.Error(t, err)
}
