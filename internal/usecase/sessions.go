package usecase

import (
	"context"
	"sync"
	"time"

	"mindlog-bot/internal/domain"
)

// SessionStore holds at most one in-progress session per user. A missing
// session is the idle state.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (domain.Session, bool, error)
	Put(ctx context.Context, s domain.Session) error
	Delete(ctx context.Context, userID int64) error
}

// MemorySessionStore keeps sessions in process memory, keyed by user id.
// With maxIdle > 0 a session untouched for longer than maxIdle is treated
// as absent and dropped on the next access; zero keeps sessions forever.
type MemorySessionStore struct {
	mu       sync.Mutex
	maxIdle  time.Duration
	sessions map[int64]domain.Session
}

func NewMemorySessionStore(maxIdle time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		maxIdle:  maxIdle,
		sessions: make(map[int64]domain.Session),
	}
}

func (m *MemorySessionStore) Get(_ context.Context, userID int64) (domain.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return domain.Session{}, false, nil
	}
	if m.maxIdle > 0 && now().Sub(s.UpdatedAt) > m.maxIdle {
		delete(m.sessions, userID)
		return domain.Session{}, false, nil
	}
	return s, true, nil
}

func (m *MemorySessionStore) Put(_ context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}
