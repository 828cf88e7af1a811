package registration

import (
	"context"
	"errors"
	"sync"

	"dinsos-bot/internal/domain"
)

// SessionStore keeps at most one open session per sender.
type SessionStore interface {
	// Get returns nil, nil when the sender has no open session.
	Get(ctx context.Context, sender string) (*domain.RegistrationSession, error)
	Put(ctx context.Context, s domain.RegistrationSession) error
	Delete(ctx context.Context, sender string) error
}

// MemorySessionStore holds sessions in process memory. Sessions are lost on
// restart.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.RegistrationSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domain.RegistrationSession)}
}

func (m *MemorySessionStore) Get(_ context.Context, sender string) (*domain.RegistrationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sender]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemorySessionStore) Put(_ context.Context, s domain.RegistrationSession) error {
	if s.Sender == "" {
		return errors.New("registration: session sender is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Sender] = s
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, sender string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sender)
	return nil
}

// Len reports the number of open sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
