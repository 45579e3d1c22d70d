package stt

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/teslashibe/go-voice-agent/pkg/audioio"
)

// Adapter drives a Recognizer and dispatches its results to callbacks.
type Adapter struct {
	rec    Recognizer
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	unbind  func()

	// OnTranscript receives every interim and final result.
	OnTranscript func(text string, confidence float64, isFinal bool)

	// OnUtterance receives final, non-empty results only.
	OnUtterance func(text string, confidence float64)

	// OnError receives recognition failures wrapped in ErrRecognition.
	OnError func(err error)
}

// NewAdapter creates an adapter for rec.
func NewAdapter(rec Recognizer, cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		rec:    rec,
		cfg:    cfg,
		logger: logger.With("component", "stt.adapter", "recognizer", rec.Name()),
	}
}

// Bind subscribes the adapter to src. Chunks are forwarded only while the
// adapter is running.
func (a *Adapter) Bind(src ChunkSource) {
	remove := src.AddChunkListener(func(c audioio.Chunk) {
		a.mu.Lock()
		running := a.running
		a.mu.Unlock()
		if !running {
			return
		}
		if err := a.rec.Feed(c); err != nil {
			a.report(err)
		}
	})

	a.mu.Lock()
	prev := a.unbind
	a.unbind = remove
	a.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Start begins recognition. Calling Start while running is a no-op.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	rctx, cancel := context.WithCancel(ctx)
	results, err := a.rec.Start(rctx, a.cfg)
	if err != nil {
		cancel()
		err = recognitionError(err)
		go a.report(err)
		return err
	}

	a.running = true
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.dispatch(results, a.done)

	a.logger.Debug("recognition started", "language", a.cfg.Language)
	return nil
}

func (a *Adapter) dispatch(results <-chan Result, done chan struct{}) {
	defer close(done)
	defer a.ended(done)
	for r := range results {
		if r.Err != nil {
			a.report(r.Err)
			continue
		}

		a.mu.Lock()
		onTranscript, onUtterance := a.OnTranscript, a.OnUtterance
		a.mu.Unlock()

		if onTranscript != nil {
			onTranscript(r.Text, r.Confidence, r.IsFinal)
		}
		if r.IsFinal && onUtterance != nil {
			if text := strings.TrimSpace(r.Text); text != "" {
				onUtterance(text, r.Confidence)
			}
		}
	}
}

// ended clears the running flag when the recognizer closed its results
// on its own, so a later Start begins a new run.
func (a *Adapter) ended(done chan struct{}) {
	a.mu.Lock()
	if !a.running || a.done != done {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel := a.cancel
	a.mu.Unlock()

	cancel()
	a.logger.Info("recognition ended by recognizer")
}

func (a *Adapter) report(err error) {
	err = recognitionError(err)
	a.logger.Warn("recognition error", "error", err)

	a.mu.Lock()
	cb := a.OnError
	a.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// Stop halts recognition without touching the capture pipeline. It waits
// until every pending result has been dispatched.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	err := a.rec.Stop()
	cancel()
	<-done
	a.logger.Debug("recognition stopped")
	return err
}

// Running reports whether recognition is active.
func (a *Adapter) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Close stops recognition and unbinds from the chunk source.
func (a *Adapter) Close() error {
	err := a.Stop()
	a.mu.Lock()
	unbind := a.unbind
	a.unbind = nil
	a.mu.Unlock()
	if unbind != nil {
		unbind()
	}
	return err
}
