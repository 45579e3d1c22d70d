package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/teslashibe/go-voice-agent/pkg/audio"
	"github.com/teslashibe/go-voice-agent/pkg/audioio"
)

// Speaking rate bounds.
const (
	MinRate = 0.25
	MaxRate = 4.0
)

// SpeakOptions shapes one utterance. Zero values mean defaults: the
// speaker's voice, rate 1, pitch 1 and full volume.
type SpeakOptions struct {
	Voice  string
	Rate   float64
	Pitch  float64
	Volume float64
}

func (o SpeakOptions) normalize() SpeakOptions {
	if o.Rate == 0 {
		o.Rate = 1
	}
	o.Rate = clamp(o.Rate, MinRate, MaxRate)
	if o.Pitch <= 0 {
		o.Pitch = 1
	}
	if o.Volume == 0 {
		o.Volume = 1
	}
	o.Volume = clamp(o.Volume, 0, 1)
	return o
}

// Utterance is one in-flight Speak call.
type Utterance struct {
	Text string

	cancel context.CancelFunc
	done   chan struct{}
	err    error
	once   sync.Once
}

// Done is closed when the utterance has finished, failed or been
// cancelled.
func (u *Utterance) Done() <-chan struct{} { return u.done }

// Wait blocks until the utterance ends or ctx is done. It returns nil when
// playback completed, ErrInterrupted when cancelled, and an error wrapping
// ErrSynthesis when audio could not be produced.
func (u *Utterance) Wait(ctx context.Context) error {
	select {
	case <-u.done:
		return u.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts synthesis or playback.
func (u *Utterance) Cancel() { u.cancel() }

// Err returns the result once Done is closed.
func (u *Utterance) Err() error {
	select {
	case <-u.done:
		return u.err
	default:
		return nil
	}
}

func (u *Utterance) finish(err error) {
	u.once.Do(func() {
		u.err = err
		close(u.done)
	})
}

// Speaker speaks one utterance at a time. A nil player synthesizes
// without playing.
type Speaker struct {
	provider Provider
	player   *audio.Player
	logger   *slog.Logger

	// Voices is the accepted voice set; unknown voices resolve to
	// DefaultVoice. Nil accepts any voice.
	Voices       []string
	DefaultVoice string

	mu      sync.Mutex
	current *Utterance

	OnStart func(text string)
	OnEnd   func(text string, err error)
}

// NewSpeaker creates a speaker.
func NewSpeaker(provider Provider, player *audio.Player, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		provider:     provider,
		player:       player,
		logger:       logger.With("component", "tts.speaker"),
		Voices:       OpenAIVoices,
		DefaultVoice: DefaultVoice,
	}
}

// Speak starts speaking text and returns immediately. Any utterance still
// in flight is cancelled first. Empty text yields an already finished
// utterance.
func (s *Speaker) Speak(ctx context.Context, text string, opts SpeakOptions) (*Utterance, error) {
	text = strings.TrimSpace(text)
	opts = opts.normalize()
	opts.Voice = s.resolveVoice(opts.Voice)

	uctx, cancel := context.WithCancel(ctx)
	u := &Utterance{Text: text, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.current
	s.current = u
	s.mu.Unlock()

	if prev != nil {
		prev.Cancel()
		<-prev.done
	}

	if text == "" {
		cancel()
		u.finish(nil)
		return u, nil
	}

	go s.run(uctx, u, opts)
	return u, nil
}

func (s *Speaker) run(ctx context.Context, u *Utterance, opts SpeakOptions) {
	defer u.cancel()

	s.mu.Lock()
	onStart, onEnd := s.OnStart, s.OnEnd
	s.mu.Unlock()
	if onStart != nil {
		onStart(u.Text)
	}

	err := s.speak(ctx, u.Text, opts)
	if err != nil && ctx.Err() != nil {
		err = ErrInterrupted
	}
	if err != nil && !errors.Is(err, ErrInterrupted) {
		s.logger.Warn("utterance failed", "error", err, "chars", len(u.Text))
	}

	s.mu.Lock()
	if s.current == u {
		s.current = nil
	}
	s.mu.Unlock()

	u.finish(err)
	if onEnd != nil {
		onEnd(u.Text, err)
	}
}

func (s *Speaker) speak(ctx context.Context, text string, opts SpeakOptions) error {
	res, err := s.provider.Synthesize(ctx, Request{
		Text:  text,
		Voice: opts.Voice,
		Speed: opts.Rate,
		Pitch: opts.Pitch,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	chunk, err := decode(res)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	if opts.Volume != 1 {
		chunk.Samples = audioio.Scale(chunk.Samples, opts.Volume)
	}

	if s.player == nil {
		return nil
	}
	return s.player.Play(ctx, chunk)
}

// Cancel aborts the current utterance, if any.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	u := s.current
	s.mu.Unlock()
	if u != nil {
		u.Cancel()
	}
}

// Speaking reports whether an utterance is in flight.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Close cancels speech and closes the provider.
func (s *Speaker) Close() error {
	s.Cancel()
	return s.provider.Close()
}

func (s *Speaker) resolveVoice(v string) string {
	if s.Voices == nil {
		if strings.TrimSpace(v) == "" {
			return s.DefaultVoice
		}
		return v
	}
	return ResolveVoice(v, s.Voices, s.DefaultVoice)
}

// decode turns a synthesis result into playable PCM.
func decode(res *AudioResult) (audioio.Chunk, error) {
	switch {
	case res == nil:
		return audioio.Chunk{}, errors.New("empty result")
	case res.Format.Encoding.IsPCM():
		ch := res.Format.Channels
		if ch <= 0 {
			ch = 1
		}
		rate := res.Format.SampleRate
		if rate <= 0 {
			rate = SampleRateFromEncoding(res.Format.Encoding)
		}
		return audioio.ChunkFromBytes(res.Audio, rate, ch), nil
	case res.Format.Encoding == EncodingWAV:
		w, err := audioio.DecodeWAV(res.Audio)
		if err != nil {
			return audioio.Chunk{}, err
		}
		return audioio.Chunk{Samples: w.Samples, SampleRate: w.SampleRate, Channels: w.Channels}, nil
	default:
		return audioio.Chunk{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, res.Format.Encoding)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
