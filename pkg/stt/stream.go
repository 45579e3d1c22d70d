package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-voice-agent/pkg/audioio"
)

// StreamConfig configures the websocket recognizer.
type StreamConfig struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// SampleRate is the PCM rate sent upstream; chunks are resampled.
	SampleRate int

	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Logger           *slog.Logger
}

// DefaultStreamConfig returns sensible defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		SampleRate:       16000,
		PingInterval:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		Logger:           slog.Default(),
	}
}

// streamMessage is the server's JSON result frame.
type streamMessage struct {
	Text         string        `json:"text"`
	Confidence   float64       `json:"confidence"`
	IsFinal      bool          `json:"is_final"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// streamControl is a client control frame.
type streamControl struct {
	Type            string `json:"type"`
	Language        string `json:"language,omitempty"`
	SampleRate      int    `json:"sample_rate,omitempty"`
	InterimResults  bool   `json:"interim_results,omitempty"`
	MaxAlternatives int    `json:"max_alternatives,omitempty"`
}

// Stream sends binary PCM16 frames to a streaming STT endpoint over a
// websocket and reads JSON results.
type Stream struct {
	cfg    StreamConfig
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	stopping bool
	ws       *websocket.Conn
	wsMu     sync.Mutex
	results  chan Result
	done     chan struct{}
	stopCh   chan struct{}
}

// NewStream creates a websocket recognizer.
func NewStream(cfg StreamConfig) *Stream {
	d := DefaultStreamConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = d.SampleRate
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = d.PingInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = d.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = d.Logger
	}
	return &Stream{cfg: cfg, logger: cfg.Logger.With("component", "stt.stream")}
}

// Start dials the endpoint and sends the run configuration.
func (s *Stream) Start(ctx context.Context, cfg Config) (<-chan Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.results, nil
	}

	u, err := url.Parse(s.cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("%w: stream: invalid url %q", ErrRecognition, s.cfg.URL)
	}
	q := u.Query()
	q.Set("language", cfg.Language)
	q.Set("sample_rate", strconv.Itoa(s.cfg.SampleRate))
	u.RawQuery = q.Encode()

	header := http.Header{}
	if s.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("%w: stream: dial: %v", ErrRecognition, err)
	}

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	})
	_ = ws.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))

	s.ws = ws
	s.running = true
	s.stopping = false
	s.results = make(chan Result, 32)
	s.done = make(chan struct{})
	s.stopCh = make(chan struct{})

	if err := s.writeJSON(streamControl{
		Type:            "config",
		Language:        cfg.Language,
		SampleRate:      s.cfg.SampleRate,
		InterimResults:  cfg.InterimResults,
		MaxAlternatives: cfg.MaxAlternatives,
	}); err != nil {
		ws.Close()
		s.running = false
		return nil, fmt.Errorf("%w: stream: send config: %v", ErrRecognition, err)
	}

	go s.readLoop(ws, s.results, s.done)
	go s.keepAlive(ws, s.stopCh)

	s.logger.Info("stream recognizer connected", "url", s.cfg.URL, "language", cfg.Language)
	return s.results, nil
}

func (s *Stream) readLoop(ws *websocket.Conn, results chan<- Result, done chan<- struct{}) {
	defer close(done)
	defer close(results)

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			dropped := s.dropped(ws)
			if dropped && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				results <- Result{Err: fmt.Errorf("%w: stream: read: %v", ErrRecognition, err)}
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
		if mt != websocket.TextMessage {
			continue
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			results <- Result{Err: fmt.Errorf("%w: stream: decode: %v", ErrRecognition, err)}
			continue
		}
		if msg.Error != "" {
			results <- Result{Err: fmt.Errorf("%w: stream: %s", ErrRecognition, msg.Error)}
			continue
		}
		results <- Result{
			Text:         msg.Text,
			Confidence:   msg.Confidence,
			IsFinal:      msg.IsFinal,
			Alternatives: msg.Alternatives,
		}
	}
}

// dropped marks the run over when ws ended without Stop, so the next
// Start redials. It reports false when Stop is already in progress.
func (s *Stream) dropped(ws *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping || !s.running || s.ws != ws {
		return false
	}
	s.running = false
	close(s.stopCh)
	_ = ws.Close()
	s.logger.Warn("stream recognizer disconnected")
	return true
}

// keepAlive sends periodic pings to keep the connection alive.
func (s *Stream) keepAlive(ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.wsMu.Lock()
			err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout))
			s.wsMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Feed resamples chunk to the upstream rate and sends it as a binary frame.
func (s *Stream) Feed(chunk audioio.Chunk) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return ErrNotStarted
	}

	samples := audioio.ToMono(chunk.Samples, chunk.Channels)
	samples = audioio.Resample(samples, chunk.SampleRate, s.cfg.SampleRate)

	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.ws.WriteMessage(websocket.BinaryMessage, audioio.SamplesToBytes(samples)); err != nil {
		return fmt.Errorf("%w: stream: write: %v", ErrRecognition, err)
	}
	return nil
}

func (s *Stream) writeJSON(v any) error {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.ws.WriteJSON(v)
}

// Stop sends a close frame, closes the connection and waits for the
// reader to exit.
func (s *Stream) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stopping = true
	ws, done, stop := s.ws, s.done, s.stopCh
	s.mu.Unlock()

	close(stop)
	_ = s.writeJSON(streamControl{Type: "close"})
	s.wsMu.Lock()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(s.cfg.WriteTimeout))
	s.wsMu.Unlock()

	select {
	case <-done:
	case <-time.After(s.cfg.WriteTimeout):
	}
	err := ws.Close()
	<-done
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Name returns "stream".
func (s *Stream) Name() string { return "stream" }

var _ Recognizer = (*Stream)(nil)
