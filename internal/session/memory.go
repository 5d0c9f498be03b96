package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the default in-process Store. Sessions expire TTL after
// creation; expiry is checked on read and reaped by Sweep.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memEntry
	ttl      time.Duration
	now      func() time.Time
}

type memEntry struct {
	sess      *Session
	expiresAt time.Time
}

// NewMemoryStore creates an empty store. A non-positive ttl falls back to
// DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		sessions: make(map[string]*memEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create stores a new session. The id must not already exist.
func (m *MemoryStore) Create(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[sess.ID]; ok && m.now().Before(e.expiresAt) {
		return fmt.Errorf("session: id %s already exists", sess.ID)
	}
	m.sessions[sess.ID] = &memEntry{sess: sess.Clone(), expiresAt: sess.CreatedAt.Add(m.ttl)}
	return nil
}

// Get returns a deep copy of the session, or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.liveLocked(id)
	if err != nil {
		return nil, err
	}
	return e.sess.Clone(), nil
}

// SetStatus advances the session's status, enforcing forward-only movement.
func (m *MemoryStore) SetStatus(ctx context.Context, id, status string) error {
	return m.update(id, func(s *Session) error {
		if err := checkTransition(s.Status, status); err != nil {
			return err
		}
		s.Status = status
		return nil
	})
}

// Fail marks the session as failed with a message.
func (m *MemoryStore) Fail(ctx context.Context, id, message string) error {
	return m.update(id, func(s *Session) error {
		if err := checkTransition(s.Status, StatusError); err != nil {
			return err
		}
		s.Status = StatusError
		s.Error = message
		return nil
	})
}

// SetFragment stores one collected data fragment.
func (m *MemoryStore) SetFragment(ctx context.Context, id, name string, data json.RawMessage) error {
	return m.update(id, func(s *Session) error {
		if Terminal(s.Status) {
			return fmt.Errorf("session: %s is terminal", id)
		}
		s.CollectedData[name] = append(json.RawMessage(nil), data...)
		return nil
	})
}

// PutPartial stores one signal result.
func (m *MemoryStore) PutPartial(ctx context.Context, id, signal string, result json.RawMessage) error {
	return m.update(id, func(s *Session) error {
		if Terminal(s.Status) {
			return fmt.Errorf("session: %s is terminal", id)
		}
		s.PartialResults[signal] = append(json.RawMessage(nil), result...)
		return nil
	})
}

// PutCategory stores one merged category result.
func (m *MemoryStore) PutCategory(ctx context.Context, id, category string, result json.RawMessage) error {
	return m.update(id, func(s *Session) error {
		if Terminal(s.Status) {
			return fmt.Errorf("session: %s is terminal", id)
		}
		s.CategoryResults[category] = append(json.RawMessage(nil), result...)
		return nil
	})
}

// SetFinal stores the synthesized report artifact.
func (m *MemoryStore) SetFinal(ctx context.Context, id string, artifact json.RawMessage) error {
	return m.update(id, func(s *Session) error {
		if Terminal(s.Status) {
			return fmt.Errorf("session: %s is terminal", id)
		}
		s.FinalArtifact = append(json.RawMessage(nil), artifact...)
		return nil
	})
}

// AppendChat adds a conversation turn. Chat stays open after completion.
func (m *MemoryStore) AppendChat(ctx context.Context, id string, turn ChatTurn) error {
	return m.update(id, func(s *Session) error {
		s.ChatHistory = append(s.ChatHistory, turn)
		return nil
	})
}

// Delete removes a session. Deleting a missing session is not an error.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Sweep removes expired sessions and returns how many were reaped.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, e := range m.sessions {
		if !now.Before(e.expiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// update applies fn to the live session under the lock. Writes never extend
// the session's lifetime; expiry stays anchored to creation.
func (m *MemoryStore) update(id string, fn func(*Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.liveLocked(id)
	if err != nil {
		return err
	}
	if err := fn(e.sess); err != nil {
		return err
	}
	e.sess.UpdatedAt = m.now()
	return nil
}

// liveLocked returns the entry for id, evicting it if expired.
// Caller must hold m.mu.
func (m *MemoryStore) liveLocked(id string) (*memEntry, error) {
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.sessions, id)
		return nil, ErrNotFound
	}
	return e, nil
}
