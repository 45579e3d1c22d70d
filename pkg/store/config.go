package store

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverJSON     = "json"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

// Config selects and configures a backend.
type Config struct {
	// Driver is one of memory, json, sqlite, postgres or pgx.
	Driver string

	// DSN is the database DSN, or the directory for the json driver.
	DSN string

	// Migrate applies pending migrations on open (SQL drivers only).
	Migrate bool

	Logger *slog.Logger
}

// Open creates the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	switch strings.ToLower(cfg.Driver) {
	case "", DriverMemory:
		return NewJSONStore(""), nil
	case DriverJSON:
		return NewJSONStore(cfg.DSN), nil
	case DriverSQLite, DriverPostgres, DriverPgx:
		s, err := OpenSQL(ctx, strings.ToLower(cfg.Driver), cfg.DSN, cfg.Logger)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if _, err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "driver %q", cfg.Driver)
	}
}
