package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voice-agent/pkg/audioio"
	"github.com/teslashibe/go-voice-agent/pkg/conversation"
	"github.com/teslashibe/go-voice-agent/pkg/expert"
	"github.com/teslashibe/go-voice-agent/pkg/hub"
	"github.com/teslashibe/go-voice-agent/pkg/inference"
	"github.com/teslashibe/go-voice-agent/pkg/protocol"
	"github.com/teslashibe/go-voice-agent/pkg/store"
	"github.com/teslashibe/go-voice-agent/pkg/tts"
	"github.com/teslashibe/go-voice-agent/pkg/voice"
)

func newTestServer(t *testing.T, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		Router:  inference.NewRouter(inference.NewRegistry()),
		Catalog: expert.Default(),
		Store:   store.NewJSONStore(""),
		Persist: voice.PersistPerMessage,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func call(t *testing.T, srv *Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func createSession(t *testing.T, srv *Server) CreateSessionResponse {
	t.Helper()
	resp, data := call(t, srv, http.MethodPost, "/api/sessions", CreateSessionRequest{
		Expert: "Maya Patel",
		Topic:  "Meditation & Wellness",
		UserID: "u-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	return decode[CreateSessionResponse](t, data)
}

func TestHealthAndCatalog(t *testing.T) {
	srv := newTestServer(t)

	resp, data := call(t, srv, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[map[string]any](t, data)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "mock", health["provider"])

	_, data = call(t, srv, http.MethodGet, "/api/experts", nil)
	experts := decode[[]map[string]any](t, data)
	require.Len(t, experts, 5)
	assert.Equal(t, "sophia-chen", experts[0]["id"])
	assert.Equal(t, "Sophia Chen", experts[0]["name"])

	_, data = call(t, srv, http.MethodGet, "/api/experts?option="+url.QueryEscape("Mock Interview"), nil)
	forOption := decode[[]map[string]any](t, data)
	require.Len(t, forOption, 2)
	assert.Equal(t, "Sophia Chen", forOption[0]["name"])

	_, data = call(t, srv, http.MethodGet, "/api/coaching-options", nil)
	options := decode[[]expert.CoachingOption](t, data)
	require.Len(t, options, 8)
	assert.Equal(t, "Lecture on Topic", options[0].Name)
}

func TestProviders(t *testing.T) {
	srv := newTestServer(t)

	_, data := call(t, srv, http.MethodGet, "/api/providers", nil)
	providers := decode[[]map[string]any](t, data)
	require.NotEmpty(t, providers)
	var mock map[string]any
	for _, p := range providers {
		if p["id"] == "mock" {
			mock = p
		}
	}
	require.NotNil(t, mock)
	assert.Equal(t, true, mock["active"])

	resp, data := call(t, srv, http.MethodPut, "/api/providers/active", SetActiveRequest{ID: "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, data)["error"], "unknown provider")

	resp, _ = call(t, srv, http.MethodPut, "/api/providers/active", SetActiveRequest{ID: "openai"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unregistered provider")

	resp, data = call(t, srv, http.MethodPut, "/api/providers/active", SetActiveRequest{ID: "mock"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "mock", decode[map[string]string](t, data)["active"])
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	created := createSession(t, srv)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Welcome)
	assert.Equal(t, "Maya Patel", created.Expert)
	assert.Equal(t, 1, srv.SessionCount())

	base := "/api/sessions/" + created.ID

	resp, data := call(t, srv, http.MethodPost, base+"/input", InputRequest{
		Text: "Hello, I'm stressed",
		Metrics: &protocol.MetricsData{
			Pitch: conversation.Metric(0.7),
			Rate:  conversation.Metric(0.7),
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	reply := decode[protocol.ResponseData](t, data)
	assert.Equal(t, "typed", reply.Source)
	assert.Equal(t, "mock", reply.Provider)
	assert.Equal(t, string(conversation.EmotionSad), reply.Emotion)
	assert.NotEmpty(t, reply.Text)
	assert.False(t, reply.Command)

	resp, data = call(t, srv, http.MethodPost, base+"/input", InputRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(data))

	resp, data = call(t, srv, http.MethodPost, base+"/command", CommandRequest{Command: "help"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	help := decode[protocol.ResponseData](t, data)
	assert.True(t, help.Command)
	assert.Equal(t, conversation.HelpText, help.Text)

	resp, _ = call(t, srv, http.MethodPost, base+"/command", CommandRequest{Command: "/dance"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = call(t, srv, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[SessionInfo](t, data)
	assert.Equal(t, voice.StateActive, info.State)
	assert.True(t, info.TextOnly)
	assert.Equal(t, 1, info.Exchanges)

	resp, data = call(t, srv, http.MethodGet, base+"/transcript?format=md", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, conversation.FormatMarkdown.ContentType(), resp.Header.Get("Content-Type"))
	assert.Contains(t, string(data), "Maya Patel")
	assert.Contains(t, string(data), "Hello, I'm stressed")

	resp, _ = call(t, srv, http.MethodGet, base+"/transcript?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = call(t, srv, http.MethodGet, base+"/feedback", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fb := decode[FeedbackResponse](t, data)
	assert.GreaterOrEqual(t, fb.ExchangesCount, 1)
	assert.NotEmpty(t, fb.Summary)

	resp, data = call(t, srv, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, conversation.ResetMessage, decode[map[string]string](t, data)["message"])

	resp, data = call(t, srv, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	closed := decode[struct {
		ID       string            `json:"id"`
		Feedback *FeedbackResponse `json:"feedback"`
	}](t, data)
	assert.Equal(t, created.ID, closed.ID)
	require.NotNil(t, closed.Feedback)
	assert.NotEmpty(t, closed.Feedback.Recommendations.Resources)
	assert.Equal(t, 0, srv.SessionCount())

	// The finished session is served from the store.
	resp, data = call(t, srv, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decode[store.SessionRecord](t, data)
	assert.Equal(t, store.StatusCompleted, rec.Status)
	assert.NotEmpty(t, rec.Messages)

	resp, _ = call(t, srv, http.MethodPost, base+"/input", InputRequest{Text: "still there?"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, data = call(t, srv, http.MethodGet, "/api/sessions?user_id=u-1", nil)
	assert.Len(t, decode[[]store.SessionRecord](t, data), 1)
}

func TestCreateSessionValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		req  CreateSessionRequest
		want int
	}{
		{name: "missing expert", req: CreateSessionRequest{Topic: "Go"}, want: http.StatusBadRequest},
		{name: "unknown expert", req: CreateSessionRequest{Expert: "Nobody", Topic: "Go"}, want: http.StatusNotFound},
		{name: "missing topic", req: CreateSessionRequest{Expert: "maya-patel"}, want: http.StatusBadRequest},
		{name: "unknown option", req: CreateSessionRequest{Expert: "maya-patel", CoachingOption: "Juggling"}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := call(t, srv, http.MethodPost, "/api/sessions", tt.req)
			assert.Equal(t, tt.want, resp.StatusCode, string(data))
		})
	}

	resp, data := call(t, srv, http.MethodPost, "/api/sessions", CreateSessionRequest{
		Expert:         "alex-rodriguez",
		CoachingOption: "technical training",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	created := decode[CreateSessionResponse](t, data)
	assert.Equal(t, "Alex Rodriguez", created.Expert)
	assert.Equal(t, "Technical Training", created.Topic)
	assert.Equal(t, "Technical Training", created.CoachingOption)
}

func TestUnknownSession(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.Store = nil })

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/sessions/nope"},
		{http.MethodPost, "/api/sessions/nope/input"},
		{http.MethodGet, "/api/sessions/nope/feedback"},
		{http.MethodGet, "/api/sessions/nope/transcript"},
		{http.MethodDelete, "/api/sessions/nope"},
	} {
		resp, _ := call(t, srv, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, tc.method+" "+tc.path)
	}

	resp, _ := call(t, srv, http.MethodGet, "/ws/sessions/nope", nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)

	_, data := call(t, srv, http.MethodGet, "/api/sessions", nil)
	assert.Empty(t, decode[[]SessionInfo](t, data))
}

func listen(t *testing.T, srv *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.App().Listener(ln) }()
	return ln.Addr().String()
}

func dial(t *testing.T, addr, id string) *gws.Conn {
	t.Helper()
	conn, resp, err := gws.DefaultDialer.Dial("ws://"+addr+"/ws/sessions/"+id, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of type want arrives.
func readUntil(t *testing.T, conn *gws.Conn, want protocol.MessageType) *protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		kind, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if kind != gws.TextMessage {
			continue
		}
		msg, err := protocol.ParseMessage(data)
		require.NoError(t, err)
		if msg.Type == want {
			return msg
		}
	}
}

func send(t *testing.T, conn *gws.Conn, msg *protocol.Message, err error) {
	t.Helper()
	require.NoError(t, err)
	data, err := msg.Bytes()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gws.TextMessage, data))
}

func TestSessionWebsocket(t *testing.T) {
	srv := newTestServer(t)
	addr := listen(t, srv)
	created := createSession(t, srv)

	conn := dial(t, addr, created.ID)

	state, err := readUntil(t, conn, protocol.TypeState).GetStateData()
	require.NoError(t, err)
	assert.Equal(t, created.ID, state.SessionID)
	assert.Equal(t, string(voice.StateActive), state.State)

	msg, err := protocol.NewPingMessage("p-1")
	send(t, conn, msg, err)
	pong, err := readUntil(t, conn, protocol.TypePong).GetPongData()
	require.NoError(t, err)
	assert.Equal(t, "p-1", pong.ID)

	msg, err = protocol.NewInputMessage("I feel confused about recursion", &protocol.MetricsData{
		Pitch:      conversation.Metric(1),
		Rate:       conversation.Metric(1),
		PauseRatio: conversation.Metric(0.5),
	})
	send(t, conn, msg, err)
	reply, err := readUntil(t, conn, protocol.TypeResponse).GetResponseData()
	require.NoError(t, err)
	assert.Equal(t, "I feel confused about recursion", reply.Input)
	assert.Equal(t, string(conversation.EmotionConfused), reply.Emotion)
	assert.NotEmpty(t, reply.Text)

	msg, err = protocol.NewInputMessage("", nil)
	send(t, conn, msg, err)
	e, err := readUntil(t, conn, protocol.TypeError).GetErrorData()
	require.NoError(t, err)
	assert.Equal(t, "empty_input", e.Code)

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte("not json")))
	e, err = readUntil(t, conn, protocol.TypeError).GetErrorData()
	require.NoError(t, err)
	assert.Equal(t, "bad_message", e.Code)

	// Closing the session broadcasts the final state and drops clients.
	resp, _ := call(t, srv, http.MethodDelete, "/api/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	closed, err := readUntil(t, conn, protocol.TypeState).GetStateData()
	require.NoError(t, err)
	assert.Equal(t, string(voice.StateClosed), closed.State)

	_, resp, err = gws.DefaultDialer.Dial("ws://"+addr+"/ws/sessions/"+created.ID, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionSpeechStreamsToClients(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.Synthesizer = tts.NewMock()
		c.Store = nil
	})
	addr := listen(t, srv)
	created := createSession(t, srv)

	conn := dial(t, addr, created.ID)
	state, err := readUntil(t, conn, protocol.TypeState).GetStateData()
	require.NoError(t, err)
	assert.False(t, state.TextOnly)

	msg, err := protocol.NewInputMessage("Tell me about breathing", nil)
	send(t, conn, msg, err)

	speak, err := readUntil(t, conn, protocol.TypeSpeak).GetSpeakData()
	require.NoError(t, err)
	assert.Equal(t, "pcm16", speak.Format)
	assert.Equal(t, 24000, speak.SampleRate)
	assert.Equal(t, 1, speak.Channels)
	assert.Positive(t, speak.DurationMs)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		kind, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if kind == gws.BinaryMessage {
			// One frame is 100ms of 24 kHz mono PCM16 at most.
			assert.LessOrEqual(t, len(data), 4800)
			assert.Zero(t, len(data)%2)
			break
		}
	}
}

func TestHubSinkPacesAndCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := hub.New("sink", nil)
	go h.Run(ctx)

	sink := newHubSink(h)
	sink.frame = 10 * time.Millisecond
	assert.Equal(t, "websocket", sink.Name())

	chunk := audioio.Chunk{Samples: make([]int16, 16000/20), SampleRate: 16000, Channels: 1}
	start := time.Now()
	require.NoError(t, sink.Play(ctx, chunk))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	pctx, pcancel := context.WithCancel(ctx)
	pcancel()
	assert.ErrorIs(t, sink.Play(pctx, chunk), context.Canceled)

	assert.NoError(t, sink.Play(ctx, audioio.Chunk{}))
	assert.NoError(t, sink.Close())
}

func TestNewServerRequiresCollaborators(t *testing.T) {
	_, err := NewServer(Config{Catalog: expert.Default()})
	assert.Error(t, err)
	_, err = NewServer(Config{Router: inference.NewRouter(nil)})
	assert.Error(t, err)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "synthesis", errorCode(tts.ErrSynthesis))
	assert.Equal(t, "session_closed", errorCode(voice.ErrClosed))
	assert.Equal(t, "internal", errorCode(io.EOF))
	assert.True(t, strings.HasPrefix(errorCode(audioio.ErrPermissionDenied), "permission"))
}
