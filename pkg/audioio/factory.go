package audioio

import (
	"fmt"
	"log/slog"
	"os/exec"
)

// NewSource creates an audio source for cfg. BackendAuto picks exec when
// the platform capture tool is on PATH and falls back to mock otherwise.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("audioio: invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := resolveBackend(cfg, captureCommand)
	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"chunk_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendExec:
		if _, err := captureCommand(cfg); err != nil {
			return nil, err
		}
		return NewCommandSource(cfg, logger), nil
	}
	return nil, fmt.Errorf("audioio: unsupported backend: %s", backend)
}

// NewSink creates an audio sink for cfg.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("audioio: invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := resolveBackend(cfg, func(c Config) ([]string, error) {
		return playbackCommand(c, Chunk{SampleRate: c.SampleRate, Channels: c.Channels})
	})
	logger.Info("creating audio sink", "backend", backend, "sample_rate", cfg.SampleRate)

	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendExec:
		return NewCommandSink(cfg, logger), nil
	}
	return nil, fmt.Errorf("audioio: unsupported backend: %s", backend)
}

func resolveBackend(cfg Config, argv func(Config) ([]string, error)) Backend {
	if cfg.Backend != BackendAuto && cfg.Backend != "" {
		return cfg.Backend
	}
	args, err := argv(cfg)
	if err != nil {
		return BackendMock
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return BackendMock
	}
	return BackendExec
}

// AvailableBackends returns the backends usable on this machine.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if resolveBackend(DefaultConfig(), captureCommand) == BackendExec {
		backends = append(backends, BackendExec)
	}
	return backends
}
