package audioio

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// MockSource is a mock audio source for testing. It emits scripted frames
// first and then synthetic audio (silence or a sine wave).
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan Chunk
	stopCh   chan struct{}
	done     chan struct{}
	startErr error
	emitted  int

	script    [][]int16
	phase     float64
	frequency float64
	amplitude float64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithFrames queues sample blocks that are emitted, one per tick, before
// synthetic audio.
func WithFrames(frames ...[]int16) MockSourceOption {
	return func(m *MockSource) {
		m.script = append(m.script, frames...)
	}
}

// WithStartError makes Start fail with err, e.g. ErrPermissionDenied.
func WithStartError(err error) MockSourceOption {
	return func(m *MockSource) {
		m.startErr = err
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger.With("component", "audioio.mock_source"),
		streamCh:  make(chan Chunk),
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.startErr != nil {
		return m.startErr
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.streamCh = make(chan Chunk, 10)

	go m.generateLoop(ctx, m.streamCh, m.stopCh, m.done)

	m.logger.Debug("mock capture started", "sample_rate", m.cfg.SampleRate, "frequency", m.frequency)
	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, out chan<- Chunk, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	ticker := time.NewTicker(m.cfg.BufferDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C:
			select {
			case out <- m.nextChunk():
			default:
				m.logger.Debug("mock source: buffer full, dropping chunk")
			}
		}
	}
}

func (m *MockSource) nextChunk() Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()

	chunk := Chunk{SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels}
	if m.emitted < len(m.script) {
		chunk.Samples = append([]int16(nil), m.script[m.emitted]...)
		m.emitted++
		return chunk
	}
	m.emitted++

	frames := m.cfg.BufferSize()
	chunk.Samples = make([]int16, frames*m.cfg.Channels)
	if m.frequency > 0 {
		for i := 0; i < frames; i++ {
			v := int16(m.amplitude * 32767 * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate)))
			for ch := 0; ch < m.cfg.Channels; ch++ {
				chunk.Samples[i*m.cfg.Channels+ch] = v
			}
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}
	return chunk
}

// Stream returns the chunk channel.
func (m *MockSource) Stream() <-chan Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Err always returns nil; mock capture never fails after Start.
func (m *MockSource) Err() error { return nil }

// Stop halts audio generation.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	stop, done := m.stopCh, m.done
	m.mu.Unlock()

	close(stop)
	<-done
	return nil
}

// Emitted returns how many chunks have been generated.
func (m *MockSource) Emitted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emitted
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config { return m.cfg }

// Name returns "mock".
func (m *MockSource) Name() string { return string(BackendMock) }

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

// MockSink records played chunks. With a pace set, Play blocks for the
// chunk's duration divided by the pace.
type MockSink struct {
	cfg    Config
	logger *slog.Logger
	pace   float64

	mu     sync.Mutex
	closed bool
	played []Chunk
	err    error
}

// NewMockSink creates a sink that returns immediately.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSink{cfg: cfg, logger: logger.With("component", "audioio.mock_sink")}
}

// SetPace makes Play take chunk.Duration()/pace. Zero disables waiting.
func (m *MockSink) SetPace(pace float64) {
	m.mu.Lock()
	m.pace = pace
	m.mu.Unlock()
}

// SetError makes subsequent Play calls fail with err.
func (m *MockSink) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Play records chunk and simulates playback time.
func (m *MockSink) Play(ctx context.Context, chunk Chunk) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return err
	}
	pace := m.pace
	m.mu.Unlock()

	if pace > 0 {
		wait := time.Duration(float64(chunk.Duration()) / pace)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.played = append(m.played, chunk)
	m.mu.Unlock()
	return nil
}

// Played returns the chunks played so far.
func (m *MockSink) Played() []Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Chunk(nil), m.played...)
}

// Name returns "mock".
func (m *MockSink) Name() string { return string(BackendMock) }

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var (
	_ Source = (*MockSource)(nil)
	_ Sink   = (*MockSink)(nil)
)
