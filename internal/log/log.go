// Package log configures the process-wide slog logger for voiceagent.
// Components take a *slog.Logger and scope it with "component"; only the
// binary touches the global.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	level  slog.LevelVar
	once   sync.Once
)

// ParseLevel maps a level name to a slog.Level.
// Unknown names resolve to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w at a fixed level. GO_ENV=production
// selects JSON output.
func New(w io.Writer, name string) *slog.Logger {
	return newLogger(w, ParseLevel(name))
}

func newLogger(w io.Writer, lvl slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lvl}
	if os.Getenv("GO_ENV") == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Init installs the global logger on stderr and sets its level. Later
// calls only change the level.
func Init(name string) {
	level.Set(ParseLevel(name))
	once.Do(func() {
		logger = newLogger(os.Stderr, &level)
		slog.SetDefault(logger)
	})
}

// L returns the global logger, initializing it at info if needed.
func L() *slog.Logger {
	once.Do(func() {
		logger = newLogger(os.Stderr, &level)
		slog.SetDefault(logger)
	})
	return logger
}
