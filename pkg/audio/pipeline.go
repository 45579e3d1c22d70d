package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-voice-agent/pkg/audioio"
)

// Pipeline owns the capture source, the realtime processing graph (noise
// gate and level meter) and the recording buffer.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	initialized bool
	destroyed   bool
	preset      QualityPreset
	params      PresetParams
	source      audioio.Source
	gate        *Compressor
	meter       *Meter
	buffer      []int16
	autoPaused  bool
	sourceErr   error

	onLevel   func(float64)
	onState   func(State)
	listeners map[int]func(audioio.Chunk)
	nextID    int

	lifetime    context.Context
	cancel      context.CancelFunc
	levelCancel context.CancelFunc
	levelDone   chan struct{}
	wg          sync.WaitGroup
}

// NewPipeline creates an idle pipeline.
func NewPipeline(cfg Config, opts ...Option) *Pipeline {
	cfg.Apply(opts...)
	cfg.fill()
	return &Pipeline{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "audio.pipeline"),
		state:     StateIdle,
		meter:     NewMeter(),
		listeners: make(map[int]func(audioio.Chunk)),
	}
}

// OnLevel registers the voice-activity callback. It is called every
// LevelInterval while recording or paused with a level in 0..255.
func (p *Pipeline) OnLevel(fn func(level float64)) {
	p.mu.Lock()
	p.onLevel = fn
	p.mu.Unlock()
}

// OnStateChange registers the recording state callback.
func (p *Pipeline) OnStateChange(fn func(State)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

// AddChunkListener registers fn to receive every processed chunk captured
// while recording. The returned func removes the listener.
func (p *Pipeline) AddChunkListener(fn func(audioio.Chunk)) (remove func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	if p.listeners != nil {
		p.listeners[id] = fn
	}
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Initialize opens the capture source for preset and builds the
// processing graph. On any failure everything acquired is released.
func (p *Pipeline) Initialize(ctx context.Context, preset QualityPreset) error {
	params, err := preset.Params()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrDestroyed
	}
	if p.initialized {
		return nil
	}

	acfg := audioio.DefaultConfig()
	acfg.Backend = p.cfg.Backend
	acfg.Device = p.cfg.Device
	acfg.SampleRate = params.SampleRate
	acfg.Channels = 1
	acfg.BufferDuration = p.cfg.ChunkInterval

	src, err := p.cfg.Source(acfg, p.cfg.Logger)
	if err != nil {
		return fmt.Errorf("audio: open source: %w", err)
	}

	lifetime, cancel := context.WithCancel(context.Background())
	if err := src.Start(lifetime); err != nil {
		cancel()
		_ = src.Close()
		if errors.Is(err, ErrPermissionDenied) {
			p.logger.Error("microphone access denied", "error", err)
		}
		return fmt.Errorf("audio: start capture: %w", err)
	}

	p.initialized = true
	p.preset = preset
	p.params = params
	p.source = src
	p.gate = NoiseGate()
	p.meter.Reset()
	p.lifetime, p.cancel = lifetime, cancel

	p.wg.Add(1)
	go p.pump(src)

	p.logger.Info("pipeline initialized", "preset", preset, "sample_rate", params.SampleRate, "backend", src.Name())
	return nil
}

// pump runs captured chunks through the graph, buffers them while
// recording and fans them out to listeners.
func (p *Pipeline) pump(src audioio.Source) {
	defer p.wg.Done()

	rate := src.Config().SampleRate
	for chunk := range src.Stream() {
		samples := toFloat(audioio.ToMono(chunk.Samples, chunk.Channels))

		p.mu.Lock()
		if p.destroyed {
			p.mu.Unlock()
			return
		}
		p.gate.Process(samples, rate)
		p.meter.Write(samples)
		processed := audioio.Chunk{Samples: toInt16(samples), SampleRate: rate, Channels: 1}

		// Listeners keep receiving silence while auto-paused so recognizers
		// can close the utterance.
		var listeners []func(audioio.Chunk)
		if p.state == StateRecording {
			p.buffer = append(p.buffer, processed.Samples...)
		}
		if p.state == StateRecording || (p.state == StatePaused && p.autoPaused) {
			for _, fn := range p.listeners {
				listeners = append(listeners, fn)
			}
		}
		p.mu.Unlock()

		for _, fn := range listeners {
			fn(processed)
		}
	}

	if err := src.Err(); err != nil {
		p.mu.Lock()
		p.sourceErr = err
		p.mu.Unlock()
		p.logger.Warn("capture source ended", "error", err)
	}
}

// StartRecording begins buffering captured chunks and starts level
// polling. Polling stops when ctx is done, on StopRecording or on Destroy.
func (p *Pipeline) StartRecording(ctx context.Context) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	if !p.initialized {
		p.mu.Unlock()
		return ErrNotInitialized
	}
	if p.state != StateIdle {
		p.mu.Unlock()
		return nil
	}

	p.buffer = p.buffer[:0]
	p.autoPaused = false
	p.state = StateRecording

	levelCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.levelCancel, p.levelDone = cancel, done
	p.wg.Add(1)
	go p.pollLevel(levelCtx, done)

	cb := p.onState
	p.mu.Unlock()

	p.logger.Debug("recording started")
	if cb != nil {
		cb(StateRecording)
	}
	return nil
}

func (p *Pipeline) pollLevel(ctx context.Context, done chan<- struct{}) {
	defer p.wg.Done()
	defer close(done)

	ticker := time.NewTicker(p.cfg.LevelInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.lifetime.Done():
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.destroyed || p.state == StateIdle {
			p.mu.Unlock()
			return
		}
		level := p.meter.Poll()
		changed := p.autoPauseLocked(level)
		state := p.state
		onLevel, onState := p.onLevel, p.onState
		p.mu.Unlock()

		if onLevel != nil {
			onLevel(level)
		}
		if changed && onState != nil {
			onState(state)
		}
	}
}

// autoPauseLocked applies the auto-pause policy and reports whether the
// state changed.
func (p *Pipeline) autoPauseLocked(level float64) bool {
	if !p.cfg.AutoPause {
		return false
	}
	switch {
	case p.state == StateRecording && level < p.cfg.SilenceThreshold:
		p.state = StatePaused
		p.autoPaused = true
		p.logger.Debug("auto-paused on silence", "level", level)
		return true
	case p.state == StatePaused && p.autoPaused && level > p.cfg.SilenceThreshold:
		p.state = StateRecording
		p.autoPaused = false
		p.logger.Debug("auto-resumed on voice activity", "level", level)
		return true
	}
	return false
}

// Pause stops buffering while keeping capture and level polling alive.
func (p *Pipeline) Pause() error {
	return p.transition(StateRecording, StatePaused)
}

// Resume restarts buffering after Pause or an auto-pause.
func (p *Pipeline) Resume() error {
	return p.transition(StatePaused, StateRecording)
}

func (p *Pipeline) transition(from, to State) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	if p.state != from {
		st := p.state
		p.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidTransition, from, to, st)
	}
	p.state = to
	p.autoPaused = false
	cb := p.onState
	p.mu.Unlock()

	if cb != nil {
		cb(to)
	}
	return nil
}

// StopRecording stops buffering and returns the recording as a WAV blob.
// It returns (nil, nil) when not recording.
func (p *Pipeline) StopRecording() (*Blob, error) {
	p.mu.Lock()
	if p.state == StateIdle {
		p.mu.Unlock()
		return nil, nil
	}
	p.state = StateIdle
	p.autoPaused = false
	samples := append([]int16(nil), p.buffer...)
	p.buffer = p.buffer[:0]
	cancel, done := p.levelCancel, p.levelDone
	p.levelCancel, p.levelDone = nil, nil
	params := p.params
	cb := p.onState
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if cb != nil {
		cb(StateIdle)
	}

	blob := newBlob(samples, params.SampleRate, 1, params.Bitrate)
	p.logger.Debug("recording stopped", "duration", blob.Duration)
	return blob, nil
}

// Enhance runs the offline enhancement chain on blob.
func (p *Pipeline) Enhance(blob *Blob) (*Blob, error) {
	return Enhance(blob)
}

// Enhance applies a low shelf (320 Hz, -3 dB), a high shelf (3200 Hz,
// +3 dB), compression and peak normalisation to -1 dBFS. The result
// depends only on the input.
func Enhance(blob *Blob) (*Blob, error) {
	if blob == nil {
		return nil, errors.New("audio: enhance: nil blob")
	}
	w, err := audioio.DecodeWAV(blob.Data)
	if err != nil {
		return nil, fmt.Errorf("audio: enhance: %w", err)
	}

	samples := toFloat(audioio.ToMono(w.Samples, w.Channels))
	LowShelf(320, -3, w.SampleRate).Process(samples)
	HighShelf(3200, 3, w.SampleRate).Process(samples)
	Leveler().Process(samples, w.SampleRate)
	NormalizePeak(samples, math.Pow(10, -1.0/20))

	return newBlob(toInt16(samples), w.SampleRate, 1, blob.Bitrate), nil
}

// Destroy stops recording, every goroutine and the capture source. It is
// idempotent; no callback fires after it returns.
func (p *Pipeline) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.state = StateIdle
	p.onLevel, p.onState, p.listeners = nil, nil, nil
	p.buffer = nil
	if p.levelCancel != nil {
		p.levelCancel()
		p.levelCancel, p.levelDone = nil, nil
	}
	if p.cancel != nil {
		p.cancel()
	}
	src := p.source
	p.source = nil
	p.mu.Unlock()

	if src != nil {
		_ = src.Stop()
	}
	p.wg.Wait()
	if src != nil {
		_ = src.Close()
	}
	p.logger.Info("pipeline destroyed")
}

// State returns the recording state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Level returns the last polled voice-activity level.
func (p *Pipeline) Level() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meter.Level()
}

// Preset returns the active preset, or "" before Initialize.
func (p *Pipeline) Preset() QualityPreset {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.preset
}

// Err returns the error that ended capture, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sourceErr
}
