package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// jsonDocument is the on-disk shape of one session file.
type jsonDocument struct {
	Session       *SessionRecord        `json:"session"`
	VoiceSessions []*VoiceSessionRecord `json:"voice_sessions,omitempty"`
}

// JSONStore keeps sessions in memory and, when Dir is set, mirrors each
// session to Dir/<id>.json after every write.
type JSONStore struct {
	Dir string

	mu     sync.Mutex
	docs   map[string]*jsonDocument
	loaded bool
}

var _ Store = (*JSONStore)(nil)

// NewJSONStore creates a store rooted at dir. An empty dir keeps
// everything in memory.
func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{Dir: dir, docs: make(map[string]*jsonDocument)}
}

// loadLocked reads existing files once.
func (s *JSONStore) loadLocked() error {
	if s.loaded || s.Dir == "" {
		s.loaded = true
		return nil
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return errors.Wrap(err, "read store directory")
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			return errors.Wrapf(err, "read %s", e.Name())
		}
		var doc jsonDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return errors.Wrapf(err, "decode %s", e.Name())
		}
		if doc.Session != nil {
			s.docs[doc.Session.ID] = &doc
		}
	}
	s.loaded = true
	return nil
}

func (s *JSONStore) saveLocked(id string) error {
	if s.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return errors.Wrap(err, "create directory")
	}
	data, err := json.MarshalIndent(s.docs[id], "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	path := filepath.Join(s.Dir, id+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write file")
	}
	return errors.Wrap(os.Rename(tmp, path), "rename file")
}

func (s *JSONStore) CreateSession(ctx context.Context, r *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	if _, ok := s.docs[r.ID]; ok {
		return errors.Errorf("store: session %s already exists", r.ID)
	}
	if r.Status == "" {
		r.Status = StatusActive
	}
	cp := *r
	cp.Messages = append([]MessageRecord(nil), r.Messages...)
	s.docs[r.ID] = &jsonDocument{Session: &cp}
	return s.saveLocked(r.ID)
}

func (s *JSONStore) AppendMessage(ctx context.Context, m *MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	doc, ok := s.docs[m.SessionID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "append to %s", m.SessionID)
	}
	doc.Session.Messages = append(doc.Session.Messages, *m)
	return s.saveLocked(m.SessionID)
}

func (s *JSONStore) UpdateSession(ctx context.Context, id string, u SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	doc, ok := s.docs[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "update %s", id)
	}
	u.apply(doc.Session)
	return s.saveLocked(id)
}

func (s *JSONStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	doc, ok := s.docs[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "get %s", id)
	}
	return copySession(doc.Session, true), nil
}

func (s *JSONStore) ListSessions(ctx context.Context, opts ListOptions) ([]*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}

	var out []*SessionRecord
	for _, doc := range s.docs {
		r := doc.Session
		if opts.UserID != "" && r.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		out = append(out, copySession(r, false))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *JSONStore) SaveVoiceSession(ctx context.Context, v *VoiceSessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	doc, ok := s.docs[v.SessionID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "voice session for %s", v.SessionID)
	}
	cp := *v
	doc.VoiceSessions = append(doc.VoiceSessions, &cp)
	return s.saveLocked(v.SessionID)
}

func (s *JSONStore) ListVoiceSessions(ctx context.Context, sessionID string) ([]*VoiceSessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	doc, ok := s.docs[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]*VoiceSessionRecord, len(doc.VoiceSessions))
	for i, v := range doc.VoiceSessions {
		cp := *v
		out[i] = &cp
	}
	return out, nil
}

// Close is a no-op; every write is already flushed.
func (s *JSONStore) Close() error {
	return nil
}

func copySession(r *SessionRecord, withMessages bool) *SessionRecord {
	cp := *r
	cp.Messages = nil
	if withMessages {
		cp.Messages = append([]MessageRecord(nil), r.Messages...)
	}
	return &cp
}
