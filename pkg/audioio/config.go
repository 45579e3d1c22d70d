// Package audioio provides audio capture and playback backends.
//
// Backends:
//   - exec: shells out to a platform capture/playback tool (arecord/aplay on
//     Linux, ffmpeg/ffplay on macOS) and exchanges raw PCM16 over pipes
//   - mock: synthetic or scripted audio for CI and tests
//
// All audio is little-endian signed 16-bit PCM.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects exec when a capture tool exists, otherwise mock.
	BackendAuto Backend = "auto"
	// BackendExec uses external command-line tools.
	BackendExec Backend = "exec"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// ParseBackend resolves a backend name.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendExec, BackendMock:
		return Backend(s), nil
	}
	return "", fmt.Errorf("audioio: unknown backend %q", s)
}

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 24000
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the length of one captured chunk.
	// Default: 100ms
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the platform-specific device identifier, e.g. "hw:0,0" for
	// arecord or ":1" for avfoundation. Empty selects the default device.
	Device string `yaml:"device" json:"device"`

	// CaptureCommand overrides the capture tool and its arguments.
	CaptureCommand []string `yaml:"capture_command" json:"capture_command,omitempty"`

	// PlaybackCommand overrides the playback tool and its arguments.
	PlaybackCommand []string `yaml:"playback_command" json:"playback_command,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     24000,
		Channels:       1,
		BufferDuration: 100 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of frames per chunk.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a chunk in bytes.
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
