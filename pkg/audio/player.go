package audio

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-voice-agent/pkg/audioio"
)

// Player plays PCM through a sink, one stream at a time.
type Player struct {
	sink   audioio.Sink
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	playing bool
	seq     uint64

	// Callbacks
	OnPlaybackStart func()
	OnPlaybackEnd   func()
}

// NewPlayer creates a player on sink.
func NewPlayer(sink audioio.Sink, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{sink: sink, logger: logger.With("component", "audio.player")}
}

// Play plays chunk and blocks until it finishes, ctx is done or Cancel is
// called. A new Play cancels the previous one.
func (p *Player) Play(ctx context.Context, chunk audioio.Chunk) error {
	if len(chunk.Samples) == 0 {
		return nil
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.seq++
	seq := p.seq
	p.cancel = cancel
	p.playing = true
	onStart := p.OnPlaybackStart
	p.mu.Unlock()

	if onStart != nil {
		onStart()
	}

	err := p.sink.Play(cctx, chunk)

	p.mu.Lock()
	current := seq == p.seq
	if current {
		p.playing = false
		p.cancel = nil
	}
	onEnd := p.OnPlaybackEnd
	p.mu.Unlock()

	if current && onEnd != nil {
		onEnd()
	}
	if err != nil {
		p.logger.Debug("playback stopped", "error", err)
	}
	return err
}

// PlayBlob decodes a WAV blob and plays it.
func (p *Player) PlayBlob(ctx context.Context, blob *Blob) error {
	w, err := audioio.DecodeWAV(blob.Data)
	if err != nil {
		return err
	}
	return p.Play(ctx, audioio.Chunk{Samples: w.Samples, SampleRate: w.SampleRate, Channels: w.Channels})
}

// Cancel stops any current playback immediately.
func (p *Player) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// IsPlaying returns whether audio is currently playing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close cancels playback and closes the sink.
func (p *Player) Close() error {
	p.Cancel()
	return p.sink.Close()
}
