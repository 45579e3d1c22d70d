package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	s, err := OpenSQL(ctx, DriverSQLite, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	n, err := s.Migrate(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	return s
}

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"sqlite": func(t *testing.T) Store { return openSQLite(t) },
		"json":   func(t *testing.T) Store { return NewJSONStore(t.TempDir()) },
		"memory": func(t *testing.T) Store { return NewJSONStore("") },
	}
}

var start = time.Date(2024, 3, 19, 10, 0, 0, 0, time.UTC)

func session(id, user string, offset time.Duration) *SessionRecord {
	return &SessionRecord{
		ID:             id,
		UserID:         user,
		Expert:         "Dr. Maya Patel",
		Topic:          "Stress management",
		CoachingOption: "Meditation & Wellness",
		StartTime:      start.Add(offset),
	}
}

func TestStoreContract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			rec := session("s1", "u1", 0)
			require.NoError(t, s.CreateSession(ctx, rec))
			assert.Equal(t, StatusActive, rec.Status)

			msgs := []MessageRecord{
				{ID: "m1", SessionID: "s1", Role: "assistant", Content: "Welcome", Model: "mock", CreatedAt: start},
				{ID: "m2", SessionID: "s1", Role: "user", Content: "I feel stressed", Emotion: "sad", Confidence: 0.9, CreatedAt: start.Add(time.Second)},
				{ID: "m3", SessionID: "s1", Role: "assistant", Content: "Let's breathe", Model: "mock", CreatedAt: start.Add(time.Second)},
			}
			for i := range msgs {
				require.NoError(t, s.AppendMessage(ctx, &msgs[i]))
			}

			got, err := s.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "Dr. Maya Patel", got.Expert)
			assert.Equal(t, "Meditation & Wellness", got.CoachingOption)
			assert.True(t, got.StartTime.Equal(start))
			assert.Nil(t, got.EndTime)
			require.Len(t, got.Messages, 3)
			assert.Equal(t, []string{"m1", "m2", "m3"}, []string{got.Messages[0].ID, got.Messages[1].ID, got.Messages[2].ID})
			assert.Equal(t, "sad", got.Messages[1].Emotion)
			assert.InDelta(t, 0.9, got.Messages[1].Confidence, 1e-9)

			completed := StatusCompleted
			summary := "Session completed. Thank you for participating!"
			dur := 95 * time.Second
			end := start.Add(dur)
			exchanges := 1
			require.NoError(t, s.UpdateSession(ctx, "s1", SessionUpdate{
				Status: &completed, Summary: &summary, Duration: &dur, EndTime: &end, Exchanges: &exchanges,
			}))

			got, err = s.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, got.Status)
			assert.Equal(t, summary, got.Summary)
			assert.Equal(t, dur, got.Duration)
			require.NotNil(t, got.EndTime)
			assert.True(t, got.EndTime.Equal(end))
			assert.Equal(t, 1, got.Exchanges)
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			_, err := s.GetSession(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			err = s.AppendMessage(ctx, &MessageRecord{ID: "m", SessionID: "missing", Role: "user", Content: "hi", CreatedAt: start})
			assert.ErrorIs(t, err, ErrNotFound)

			st := StatusPaused
			assert.ErrorIs(t, s.UpdateSession(ctx, "missing", SessionUpdate{Status: &st}), ErrNotFound)

			err = s.SaveVoiceSession(ctx, &VoiceSessionRecord{ID: "v", SessionID: "missing", Transcription: "hi", CreatedAt: start})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreListSessions(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			require.NoError(t, s.CreateSession(ctx, session("a", "u1", 0)))
			require.NoError(t, s.CreateSession(ctx, session("b", "u1", time.Hour)))
			require.NoError(t, s.CreateSession(ctx, session("c", "u2", 2*time.Hour)))
			completed := StatusCompleted
			require.NoError(t, s.UpdateSession(ctx, "a", SessionUpdate{Status: &completed}))

			all, err := s.ListSessions(ctx, ListOptions{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "c", all[0].ID, "newest first")

			mine, err := s.ListSessions(ctx, ListOptions{UserID: "u1"})
			require.NoError(t, err)
			require.Len(t, mine, 2)
			assert.Equal(t, "b", mine[0].ID)

			done, err := s.ListSessions(ctx, ListOptions{Status: StatusCompleted})
			require.NoError(t, err)
			require.Len(t, done, 1)
			assert.Equal(t, "a", done[0].ID)

			limited, err := s.ListSessions(ctx, ListOptions{Limit: 1})
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestStoreVoiceSessions(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			require.NoError(t, s.CreateSession(ctx, session("s1", "u1", 0)))

			v := &VoiceSessionRecord{
				ID:             "v1",
				SessionID:      "s1",
				UserID:         "u1",
				Transcription:  "I feel stressed",
				AIResponse:     "Let's breathe",
				ProcessingTime: 1500 * time.Millisecond,
				Metadata: VoiceMetadata{
					Language:   "en-US",
					Confidence: 0.92,
					Emotion:    "sad",
					Keywords:   []string{"feel", "stressed"},
				},
				CreatedAt: start,
			}
			require.NoError(t, s.SaveVoiceSession(ctx, v))
			require.NoError(t, s.SaveVoiceSession(ctx, &VoiceSessionRecord{
				ID: "v2", SessionID: "s1", Transcription: "…", ErrorLog: "synthesis failed", CreatedAt: start.Add(time.Second),
			}))

			got, err := s.ListVoiceSessions(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, v.Metadata, got[0].Metadata)
			assert.Equal(t, 1500*time.Millisecond, got[0].ProcessingTime)
			assert.Equal(t, "synthesis failed", got[1].ErrorLog)
		})
	}
}

func TestJSONStoreReloadsFromDisk(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "sessions")

	s := NewJSONStore(dir)
	require.NoError(t, s.CreateSession(ctx, session("s1", "u1", 0)))
	require.NoError(t, s.AppendMessage(ctx, &MessageRecord{ID: "m1", SessionID: "s1", Role: "user", Content: "hello", CreatedAt: start}))
	require.NoError(t, s.Close())

	reopened := NewJSONStore(dir)
	got, err := reopened.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)

	assert.Error(t, reopened.CreateSession(ctx, session("s1", "u1", 0)), "duplicate id")
}

func TestJSONStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewJSONStore("")
	require.NoError(t, s.CreateSession(ctx, session("s1", "u1", 0)))
	require.NoError(t, s.AppendMessage(ctx, &MessageRecord{ID: "m1", SessionID: "s1", Content: "a"}))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	got.Messages[0].Content = "mutated"
	got.Topic = "mutated"

	again, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.Messages[0].Content)
	assert.Equal(t, "Stress management", again.Topic)
}

func TestSQLStoreMigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	n, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestRebind(t *testing.T) {
	s := &SQLStore{postgres: true}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", s.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	s.postgres = false
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, s)

	s, err = Open(ctx, Config{Driver: "sqlite", DSN: ":memory:", Migrate: true})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.CreateSession(ctx, session("x", "", 0)))

	_, err = Open(ctx, Config{Driver: "mysql"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
