// Package session holds authenticated-session state behind a Store
// interface: a process-local map for single-node runs and tests, Redis
// when session survival across instances matters. Either way sessions
// are volatile; a wiped store just forces a re-login.
package session

import (
	"context"
	"sync"
	"time"
)

const TTL = time.Hour // fixed expiry, no sliding renewal

type Session struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"` // customer | admin
	CreatedAt time.Time `json:"created_at"`
}

func (s Session) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > TTL
}

type Store interface {
	Put(ctx context.Context, token string, s Session) error
	// Get returns false for unknown and for expired tokens alike.
	Get(ctx context.Context, token string) (Session, bool)
	// Delete is idempotent.
	Delete(ctx context.Context, token string)
}

// MemoryStore is a mutex-guarded map. Expired entries linger until the
// token is looked up again or a Put triggers a sweep.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session), now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, token string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for t, old := range m.sessions {
		if old.Expired(now) {
			delete(m.sessions, t)
		}
	}
	m.sessions[token] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, token string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return Session{}, false
	}
	if s.Expired(m.now()) {
		delete(m.sessions, token)
		return Session{}, false
	}
	return s, true
}

func (m *MemoryStore) Delete(_ context.Context, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// Len reports live entries, expired ones included until evicted.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
