// Package stt adapts continuous speech recognition to the conversation
// loop. A Recognizer turns PCM chunks into interim and final Results; the
// Adapter binds a recognizer to the capture pipeline and forwards only
// final results as user utterances.
package stt

import (
	"context"
	"errors"

	"github.com/teslashibe/go-voice-agent/pkg/audioio"
)

var (
	// ErrRecognition wraps every recognizer failure. It is never fatal to
	// the session.
	ErrRecognition = errors.New("stt: recognition error")

	// ErrNotStarted is returned when feeding a stopped recognizer.
	ErrNotStarted = errors.New("stt: recognizer not started")
)

// Alternative is one candidate transcription.
type Alternative struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Result is one recognition event. Interim results are advisory; only
// results with IsFinal set are complete utterances. A non-nil Err reports
// a recognition failure and carries no text.
type Result struct {
	Text         string        `json:"text"`
	Confidence   float64       `json:"confidence"`
	IsFinal      bool          `json:"is_final"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	Err          error         `json:"-"`
}

// Config controls a recognition run.
type Config struct {
	Language        string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// DefaultConfig returns en-US continuous recognition with interim results
// and three alternatives.
func DefaultConfig() Config {
	return Config{
		Language:        "en-US",
		Continuous:      true,
		InterimResults:  true,
		MaxAlternatives: 3,
	}
}

// Recognizer is a streaming speech-to-text engine.
type Recognizer interface {
	// Start begins a recognition run. The returned channel is closed by
	// Stop.
	Start(ctx context.Context, cfg Config) (<-chan Result, error)

	// Feed submits captured audio. It must not block on network I/O.
	Feed(chunk audioio.Chunk) error

	// Stop ends the run and closes the result channel.
	Stop() error

	// Name identifies the backend.
	Name() string
}

// ChunkSource is anything that fans out captured chunks, such as
// audio.Pipeline.
type ChunkSource interface {
	AddChunkListener(fn func(audioio.Chunk)) (remove func())
}

func recognitionError(err error) error {
	if err == nil || errors.Is(err, ErrRecognition) {
		return err
	}
	return errors.Join(ErrRecognition, err)
}
