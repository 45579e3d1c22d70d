package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	// Database drivers.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db       *sql.DB
	driver   string
	postgres bool
	logger   *slog.Logger
}

var _ Store = (*SQLStore)(nil)

// OpenSQL opens a database. driver is sqlite (modernc), postgres (lib/pq)
// or pgx (jackc/pgx stdlib).
func OpenSQL(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if driver == DriverSQLite && dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}

	if driver == DriverSQLite {
		// One connection keeps :memory: databases alive and serializes
		// writers.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to enable foreign keys")
		}
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &SQLStore{
		db:       db,
		driver:   driver,
		postgres: driver != DriverSQLite,
		logger:   logger.With("component", "store.sql", "driver", driver),
	}, nil
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) provider() (*goose.Provider, error) {
	dialect := goose.DialectSQLite3
	if s.postgres {
		dialect = goose.DialectPostgres
	}
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(dialect, s.db, fsys)
}

// Migrate applies pending migrations and returns how many ran.
func (s *SQLStore) Migrate(ctx context.Context) (int, error) {
	p, err := s.provider()
	if err != nil {
		return 0, errors.Wrap(err, "failed to create migration provider")
	}
	results, err := p.Up(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to apply migrations")
	}
	for _, r := range results {
		s.logger.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return len(results), nil
}

// SchemaVersion returns the current migration version.
func (s *SQLStore) SchemaVersion(ctx context.Context) (int64, error) {
	p, err := s.provider()
	if err != nil {
		return 0, errors.Wrap(err, "failed to create migration provider")
	}
	v, err := p.GetDBVersion(ctx)
	return v, errors.Wrap(err, "failed to read schema version")
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

func (s *SQLStore) CreateSession(ctx context.Context, r *SessionRecord) error {
	status := r.Status
	if status == "" {
		status = StatusActive
	}
	_, err := s.exec(ctx, `INSERT INTO sessions
		(id, user_id, expert, topic, coaching_option, status, start_ts, end_ts, duration_ms, exchanges, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Expert, r.Topic, r.CoachingOption, string(status),
		toMillis(r.StartTime), nullMillis(r.EndTime), r.Duration.Milliseconds(), r.Exchanges, r.Summary)
	if err != nil {
		return errors.Wrapf(err, "failed to create session %s", r.ID)
	}
	r.Status = status
	return nil
}

func (s *SQLStore) AppendMessage(ctx context.Context, m *MessageRecord) error {
	res, err := s.exec(ctx, `INSERT INTO session_messages
		(id, session_id, seq, role, content, emotion, confidence, model, created_ts)
		SELECT ?, ?, COALESCE(MAX(seq), -1) + 1, ?, ?, ?, ?, ?, ?
		FROM session_messages WHERE session_id = ?`,
		m.ID, m.SessionID, m.Role, m.Content, m.Emotion, m.Confidence, m.Model, toMillis(m.CreatedAt), m.SessionID)
	if err != nil {
		if s.isForeignKeyError(err) {
			return errors.Wrapf(ErrNotFound, "append to %s", m.SessionID)
		}
		return errors.Wrapf(err, "failed to append message to %s", m.SessionID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "append to %s", m.SessionID)
	}
	return nil
}

func (s *SQLStore) UpdateSession(ctx context.Context, id string, u SessionUpdate) error {
	var sets []string
	var args []any
	if u.Status != nil {
		sets, args = append(sets, "status = ?"), append(args, string(*u.Status))
	}
	if u.Summary != nil {
		sets, args = append(sets, "summary = ?"), append(args, *u.Summary)
	}
	if u.Duration != nil {
		sets, args = append(sets, "duration_ms = ?"), append(args, u.Duration.Milliseconds())
	}
	if u.EndTime != nil {
		sets, args = append(sets, "end_ts = ?"), append(args, toMillis(*u.EndTime))
	}
	if u.Exchanges != nil {
		sets, args = append(sets, "exchanges = ?"), append(args, *u.Exchanges)
	}
	if len(sets) == 0 {
		_, err := s.GetSession(ctx, id)
		return err
	}

	args = append(args, id)
	res, err := s.exec(ctx, "UPDATE sessions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return errors.Wrapf(err, "failed to update session %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "update %s", id)
	}
	return nil
}

const sessionColumns = `id, user_id, expert, topic, coaching_option, status, start_ts, end_ts, duration_ms, exchanges, summary`

func scanSession(row interface{ Scan(...any) error }) (*SessionRecord, error) {
	var (
		r        SessionRecord
		status   string
		startTs  int64
		endTs    sql.NullInt64
		duration int64
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.Expert, &r.Topic, &r.CoachingOption, &status,
		&startTs, &endTs, &duration, &r.Exchanges, &r.Summary); err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.StartTime = fromMillis(startTs)
	if endTs.Valid {
		t := fromMillis(endTs.Int64)
		r.EndTime = &t
	}
	r.Duration = time.Duration(duration) * time.Millisecond
	return &r, nil
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+sessionColumns+" FROM sessions WHERE id = ?"), id)
	r, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "get %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get session %s", id)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, session_id, role, content, emotion, confidence, model, created_ts
		FROM session_messages WHERE session_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list messages of %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var m MessageRecord
		var ts int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Emotion, &m.Confidence, &m.Model, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		m.CreatedAt = fromMillis(ts)
		r.Messages = append(r.Messages, m)
	}
	return r, errors.Wrap(rows.Err(), "failed to iterate messages")
}

func (s *SQLStore) ListSessions(ctx context.Context, opts ListOptions) ([]*SessionRecord, error) {
	q := "SELECT " + sessionColumns + " FROM sessions"
	var where []string
	var args []any
	if opts.UserID != "" {
		where, args = append(where, "user_id = ?"), append(args, opts.UserID)
	}
	if opts.Status != "" {
		where, args = append(where, "status = ?"), append(args, string(opts.Status))
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY start_ts DESC, id"
	if opts.Limit > 0 {
		q += " LIMIT " + strconv.Itoa(opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan session")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate sessions")
}

func (s *SQLStore) SaveVoiceSession(ctx context.Context, v *VoiceSessionRecord) error {
	md, err := json.Marshal(v.Metadata)
	if err != nil {
		return errors.Wrap(err, "failed to encode voice metadata")
	}
	_, err = s.exec(ctx, `INSERT INTO voice_sessions
		(id, session_id, user_id, transcription, ai_response, processing_time_ms, error_log, metadata, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.SessionID, v.UserID, v.Transcription, v.AIResponse,
		v.ProcessingTime.Milliseconds(), v.ErrorLog, string(md), toMillis(v.CreatedAt))
	if err != nil {
		if s.isForeignKeyError(err) {
			return errors.Wrapf(ErrNotFound, "voice session for %s", v.SessionID)
		}
		return errors.Wrapf(err, "failed to save voice session for %s", v.SessionID)
	}
	return nil
}

func (s *SQLStore) ListVoiceSessions(ctx context.Context, sessionID string) ([]*VoiceSessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, session_id, user_id, transcription, ai_response,
		processing_time_ms, error_log, metadata, created_ts
		FROM voice_sessions WHERE session_id = ? ORDER BY created_ts, id`), sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list voice sessions")
	}
	defer rows.Close()

	var out []*VoiceSessionRecord
	for rows.Next() {
		var (
			v      VoiceSessionRecord
			procMs int64
			md     string
			ts     int64
		)
		if err := rows.Scan(&v.ID, &v.SessionID, &v.UserID, &v.Transcription, &v.AIResponse,
			&procMs, &v.ErrorLog, &md, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan voice session")
		}
		if err := json.Unmarshal([]byte(md), &v.Metadata); err != nil {
			return nil, errors.Wrap(err, "failed to decode voice metadata")
		}
		v.ProcessingTime = time.Duration(procMs) * time.Millisecond
		v.CreatedAt = fromMillis(ts)
		out = append(out, &v)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate voice sessions")
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) isForeignKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key")
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
