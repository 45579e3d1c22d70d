package audioio

import (
	"context"
	"io"
	"time"
)

// Chunk is a block of interleaved PCM16 samples.
type Chunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes returns the samples as little-endian PCM16.
func (c Chunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// ChunkFromBytes builds a chunk from raw PCM16 bytes.
func ChunkFromBytes(data []byte, sampleRate, channels int) Chunk {
	return Chunk{Samples: BytesToSamples(data), SampleRate: sampleRate, Channels: channels}
}

// Duration returns the playback length of the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start opens the device and begins capture. Errors from opening the
	// device are returned here; ErrPermissionDenied is terminal.
	Start(ctx context.Context) error

	// Stream returns the chunk channel. It is closed when capture stops.
	Stream() <-chan Chunk

	// Err returns the error that ended capture, if any, once Stream is
	// closed.
	Err() error

	// Stop halts capture. It is safe to call Stop multiple times.
	Stop() error

	// Config returns the audio configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	io.Closer
}
