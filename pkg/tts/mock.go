package tts

import (
	"context"
	"sync"
	"time"
)

// MockCharDuration is the silent audio produced per character at speed 1.
const MockCharDuration = 20 * time.Millisecond

const mockSampleRate = 24000

// Mock is the provider used when no speech credentials are configured. It
// returns silence sized to the text, so playback timing behaves like real
// speech. Tests override SynthesizeFunc or set Latency.
type Mock struct {
	// SynthesizeFunc replaces the silent synthesis when set. Stream
	// buffers its result.
	SynthesizeFunc func(ctx context.Context, req Request) (*AudioResult, error)

	// Latency delays every Synthesize and Stream call.
	Latency time.Duration

	// HealthErr is returned by Health.
	HealthErr error

	mu     sync.Mutex
	calls  []MockCall
	closed bool
}

// MockCall records one method invocation.
type MockCall struct {
	Method  string
	Request Request
	Time    time.Time
}

var _ Provider = (*Mock)(nil)

// NewMock creates a mock that returns 24 kHz silence, MockCharDuration
// per character divided by the requested speed.
func NewMock() *Mock {
	return &Mock{}
}

// WithError returns a mock whose every call fails with err.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(context.Context, Request) (*AudioResult, error) { return nil, err },
		HealthErr:      err,
	}
}

// Silence returns the mock's audio for req.
func Silence(req Request) *AudioResult {
	speed := req.Speed
	if speed <= 0 {
		speed = 1
	}
	chars := len([]rune(req.Text))
	d := time.Duration(float64(chars) * float64(MockCharDuration) / speed)
	samples := int(d.Seconds() * mockSampleRate)
	return &AudioResult{
		Audio:     make([]byte, samples*2),
		Format:    AudioFormat{Encoding: EncodingPCM24, SampleRate: mockSampleRate, Channels: 1, BitDepth: 16},
		CharCount: chars,
		Duration:  d,
	}
}

// Synthesize implements Provider.
func (m *Mock) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	m.record("Synthesize", req)
	return m.synthesize(ctx, req)
}

// Stream implements Provider with a single-chunk stream.
func (m *Mock) Stream(ctx context.Context, req Request) (AudioStream, error) {
	m.record("Stream", req)
	res, err := m.synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	return &bufferStream{data: res.Audio, format: res.Format}, nil
}

func (m *Mock) synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	if m.isClosed() {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	if m.Latency > 0 {
		t := time.NewTimer(m.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, req)
	}
	return Silence(req), nil
}

// Health implements Provider.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", Request{})
	return m.HealthErr
}

// Close implements Provider. Later calls fail.
func (m *Mock) Close() error {
	m.record("Close", Request{})
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Mock) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) record(method string, req Request) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Request: req, Time: time.Now()})
	m.mu.Unlock()
}

// Calls returns the recorded calls in order.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount counts calls to method.
func (m *Mock) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LastCall returns the most recent call, or nil.
func (m *Mock) LastCall() *MockCall {
	calls := m.Calls()
	if len(calls) == 0 {
		return nil
	}
	return &calls[len(calls)-1]
}

// Reset forgets recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}
