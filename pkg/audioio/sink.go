package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Play blocks until chunk has been played or ctx is done. Cancelling
	// ctx stops playback immediately.
	Play(ctx context.Context, chunk Chunk) error

	// Name returns the backend name.
	Name() string

	io.Closer
}
