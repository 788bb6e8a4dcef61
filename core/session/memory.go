package session

import (
	"context"
	"sync"
)

// MemoryStore is an in-process session store for tests and dev mode.
type MemoryStore struct {
	mutex    sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Insert persists a session, enforcing token uniqueness.
func (m *MemoryStore) Insert(ctx context.Context, s Session) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.sessions[s.Token]; ok {
		return ErrDuplicateToken
	}
	m.sessions[s.Token] = s
	return nil
}

// Lookup returns the session for a token, or nil.
func (m *MemoryStore) Lookup(ctx context.Context, token string) (*Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Delete removes the session for a token.
func (m *MemoryStore) Delete(ctx context.Context, token string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.sessions[token]
	delete(m.sessions, token)
	return ok, nil
}
