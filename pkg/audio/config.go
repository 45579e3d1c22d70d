package audio

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-voice-agent/pkg/audioio"
)

// DefaultSilenceThreshold is the auto-pause level on the 0..255 scale.
const DefaultSilenceThreshold = 10

// SourceFactory opens a capture source for the given audio format.
type SourceFactory func(cfg audioio.Config, logger *slog.Logger) (audioio.Source, error)

// Config holds pipeline configuration.
type Config struct {
	// Backend and Device are passed to audioio when Source is nil.
	Backend audioio.Backend
	Device  string

	// Source overrides how the capture source is created.
	Source SourceFactory

	// ChunkInterval is the capture chunk length. Default: 100ms.
	ChunkInterval time.Duration

	// LevelInterval is the voice-activity polling cadence. Default: 100ms.
	LevelInterval time.Duration

	// AutoPause pauses buffering while the level stays below
	// SilenceThreshold and resumes when it rises above.
	AutoPause        bool
	SilenceThreshold float64

	Logger *slog.Logger
}

// Option configures a Config.
type Option func(*Config)

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Backend:          audioio.BackendAuto,
		ChunkInterval:    100 * time.Millisecond,
		LevelInterval:    100 * time.Millisecond,
		SilenceThreshold: DefaultSilenceThreshold,
		Logger:           slog.Default(),
	}
}

// WithBackend selects the audioio backend and device.
func WithBackend(b audioio.Backend, device string) Option {
	return func(c *Config) {
		c.Backend = b
		c.Device = device
	}
}

// WithSource overrides source creation.
func WithSource(f SourceFactory) Option {
	return func(c *Config) { c.Source = f }
}

// WithAutoPause enables auto-pause with the given threshold.
func WithAutoPause(threshold float64) Option {
	return func(c *Config) {
		c.AutoPause = true
		if threshold > 0 {
			c.SilenceThreshold = threshold
		}
	}
}

// WithIntervals overrides the chunk and level cadences.
func WithIntervals(chunk, level time.Duration) Option {
	return func(c *Config) {
		if chunk > 0 {
			c.ChunkInterval = chunk
		}
		if level > 0 {
			c.LevelInterval = level
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func (c *Config) fill() {
	d := DefaultConfig()
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = d.ChunkInterval
	}
	if c.LevelInterval <= 0 {
		c.LevelInterval = d.LevelInterval
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = d.SilenceThreshold
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	if c.Source == nil {
		c.Source = func(cfg audioio.Config, logger *slog.Logger) (audioio.Source, error) {
			return audioio.NewSource(cfg, logger)
		}
	}
}
