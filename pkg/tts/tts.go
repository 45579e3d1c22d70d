// Package tts turns assistant replies into speech.
//
// Providers (OpenAI, ElevenLabs and a silent mock) implement Provider and
// can be stacked with Chain for fallback. Speaker sits on top: it resolves
// the voice, applies rate and volume, plays the audio through an
// audio.Player and hands back an Utterance the caller can await or cancel.
//
//	provider, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	speaker := tts.NewSpeaker(provider, player, nil)
//
//	u, _ := speaker.Speak(ctx, "Let's take a slow breath together.", tts.SpeakOptions{Voice: "nova"})
//	err := u.Wait(ctx)
package tts

import (
	"context"
	"time"
)

// Provider synthesizes speech.
type Provider interface {
	// Synthesize converts a request to audio, returning the complete buffer.
	Synthesize(ctx context.Context, req Request) (*AudioResult, error)

	// Stream converts a request to audio, returning chunks as they arrive.
	Stream(ctx context.Context, req Request) (AudioStream, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Request is one synthesis call.
type Request struct {
	Text string

	// Voice is a provider voice name. Empty uses the provider default.
	Voice string

	// Speed is the speaking rate multiplier, 1.0 is normal.
	Speed float64

	// Pitch is a hint in semitone-like units around 1.0. Providers that
	// cannot shift pitch ignore it.
	Pitch float64
}

// AudioStream represents a streaming audio response.
// Callers should read until Read returns nil, then call Close.
type AudioStream interface {
	// Read returns the next audio chunk, or nil when the stream is done.
	Read() ([]byte, error)

	Close() error

	Format() AudioFormat
}

// AudioResult is a complete synthesis result.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration
	CharCount int

	// LatencyMs is the time to first byte in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding names an audio encoding.
type Encoding string

const (
	// Raw little-endian PCM16 mono.
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"

	// EncodingWAV is a RIFF container around PCM16.
	EncodingWAV Encoding = "wav"

	// EncodingMP3 cannot be played by Speaker; it is kept for callers that
	// only store audio.
	EncodingMP3 Encoding = "mp3_44100_128"
)

// IsPCM reports whether enc is raw PCM16.
func (enc Encoding) IsPCM() bool {
	switch enc {
	case EncodingPCM16, EncodingPCM22, EncodingPCM24, EncodingPCM44:
		return true
	}
	return false
}

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM24:
		return 24000
	case EncodingPCM44, EncodingMP3:
		return 44100
	default:
		return 24000
	}
}

// pcmDuration estimates playback time of mono PCM16 bytes.
func pcmDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(n/2) / float64(sampleRate) * float64(time.Second))
}
