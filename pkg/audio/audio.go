// Package audio owns microphone capture for a voice session: the realtime
// processing graph, voice-activity metering, the recording lifecycle, and
// offline enhancement of finished recordings.
//
// Usage:
//
//	p := audio.NewPipeline(audio.DefaultConfig())
//	defer p.Destroy()
//
//	p.OnLevel(func(level float64) { ... })
//	if err := p.Initialize(ctx, audio.PresetMedium); err != nil {
//	    // errors.Is(err, audio.ErrPermissionDenied) is terminal
//	}
//	p.StartRecording(ctx)
//	...
//	blob, err := p.StopRecording()
package audio

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-voice-agent/pkg/audioio"
)

var (
	// ErrPermissionDenied is returned by Initialize when the capture
	// device refuses access. It is terminal and user-actionable.
	ErrPermissionDenied = audioio.ErrPermissionDenied

	// ErrNotInitialized is returned when recording is requested before
	// Initialize.
	ErrNotInitialized = errors.New("audio: pipeline not initialized")

	// ErrDestroyed is returned by any operation after Destroy.
	ErrDestroyed = errors.New("audio: pipeline destroyed")

	// ErrInvalidTransition is returned by Pause and Resume when the
	// pipeline is not in the required state.
	ErrInvalidTransition = errors.New("audio: invalid state transition")
)

// QualityPreset selects capture sample rate and bitrate.
type QualityPreset string

const (
	PresetHigh   QualityPreset = "high"
	PresetMedium QualityPreset = "medium"
	PresetLow    QualityPreset = "low"
)

// PresetParams are the capture parameters for a preset.
type PresetParams struct {
	SampleRate int
	Bitrate    int
}

var presets = map[QualityPreset]PresetParams{
	PresetHigh:   {SampleRate: 48000, Bitrate: 192000},
	PresetMedium: {SampleRate: 24000, Bitrate: 128000},
	PresetLow:    {SampleRate: 16000, Bitrate: 64000},
}

// Params returns the capture parameters for p.
func (p QualityPreset) Params() (PresetParams, error) {
	params, ok := presets[p]
	if !ok {
		return PresetParams{}, fmt.Errorf("audio: unknown quality preset %q", p)
	}
	return params, nil
}

// ParsePreset resolves a preset name; empty means medium.
func ParsePreset(s string) (QualityPreset, error) {
	p := QualityPreset(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PresetMedium, nil
	}
	if _, err := p.Params(); err != nil {
		return "", err
	}
	return p, nil
}

// State is the recording state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
)

// Blob is a finished recording encoded as WAV.
type Blob struct {
	Data       []byte
	SampleRate int
	Channels   int
	Bitrate    int
	Duration   time.Duration
}

// MimeType returns the blob's content type.
func (b *Blob) MimeType() string { return "audio/wav" }

// Samples decodes the blob's PCM.
func (b *Blob) Samples() ([]int16, error) {
	w, err := audioio.DecodeWAV(b.Data)
	if err != nil {
		return nil, err
	}
	return w.Samples, nil
}

func newBlob(samples []int16, sampleRate, channels, bitrate int) *Blob {
	chunk := audioio.Chunk{Samples: samples, SampleRate: sampleRate, Channels: channels}
	return &Blob{
		Data:       audioio.EncodeWAV(samples, sampleRate, channels),
		SampleRate: sampleRate,
		Channels:   channels,
		Bitrate:    bitrate,
		Duration:   chunk.Duration(),
	}
}
