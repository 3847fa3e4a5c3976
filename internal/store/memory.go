package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local CollectionStore. Pointers are lost on
// restart.
type MemoryStore struct {
	mu     sync.RWMutex
	active map[string]ActiveCollection
	log    []ActiveCollection
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{active: make(map[string]ActiveCollection)}
}

// SetActive replaces the session's pointer.
func (m *MemoryStore) SetActive(_ context.Context, ac ActiveCollection) error {
	session, err := NormalizeSession(ac.SessionID)
	if err != nil {
		return err
	}
	ac.SessionID = session
	if ac.UpdatedAt.IsZero() {
		ac.UpdatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[session] = ac
	m.log = append(m.log, ac)
	return nil
}

// Active returns the session's pointer.
func (m *MemoryStore) Active(_ context.Context, sessionID string) (ActiveCollection, error) {
	session, err := NormalizeSession(sessionID)
	if err != nil {
		return ActiveCollection{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	ac, ok := m.active[session]
	if !ok {
		return ActiveCollection{}, ErrNoActiveCollection
	}
	return ac, nil
}

// Recent returns up to n logged ingestions, newest first.
func (m *MemoryStore) Recent(_ context.Context, n int) ([]ActiveCollection, error) {
	if n <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if n > len(m.log) {
		n = len(m.log)
	}
	out := make([]ActiveCollection, 0, n)
	for i := len(m.log) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.log[i])
	}
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
