package stt

import (
	"context"
	"sync"

	"github.com/teslashibe/go-voice-agent/pkg/audioio"
)

// Mock is a scripted recognizer. Each scripted result is emitted after
// Every fed chunks; Emit pushes results directly.
type Mock struct {
	// Every is the number of chunks per scripted result. Default 1.
	Every int

	mu      sync.Mutex
	script  []Result
	results chan Result
	running bool
	fed     int
	cfg     Config
}

// NewMock creates a mock that plays script in order.
func NewMock(script ...Result) *Mock {
	return &Mock{Every: 1, script: script}
}

// Start begins a run.
func (m *Mock) Start(ctx context.Context, cfg Config) (<-chan Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return m.results, nil
	}
	m.running = true
	m.cfg = cfg
	m.results = make(chan Result, 64)
	return m.results, nil
}

// Feed counts chunks and releases the next scripted result.
func (m *Mock) Feed(chunk audioio.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return ErrNotStarted
	}
	m.fed++
	every := m.Every
	if every <= 0 {
		every = 1
	}
	if m.fed%every == 0 && len(m.script) > 0 {
		r := m.script[0]
		m.script = m.script[1:]
		m.sendLocked(r)
	}
	return nil
}

// Emit pushes r to the current run.
func (m *Mock) Emit(r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.sendLocked(r)
	}
}

func (m *Mock) sendLocked(r Result) {
	select {
	case m.results <- r:
	default:
	}
}

// Stop ends the run.
func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	close(m.results)
	return nil
}

// Fed returns how many chunks were fed.
func (m *Mock) Fed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fed
}

// LastConfig returns the config of the latest run.
func (m *Mock) LastConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Name returns "mock".
func (m *Mock) Name() string { return "mock" }

var _ Recognizer = (*Mock)(nil)
