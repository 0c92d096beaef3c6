package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/fablegate/fable/pkg/state"
)

// MockStore is an in-memory Store for tests. Error fields let tests
// inject failures per operation.
type MockStore struct {
	mu       sync.Mutex
	sessions map[string]*state.Session
	activeID string

	PingError   error
	SaveError   error
	LoadError   error
	DeleteError error

	SaveCalls   int
	DeleteCalls int
}

var _ Store = (*MockStore)(nil)

func NewMockStore() *MockStore {
	return &MockStore{sessions: make(map[string]*state.Session)}
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingError
}

func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) SaveSession(ctx context.Context, s *state.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	if s.ID == "" {
		return errors.New("session has no id")
	}
	m.sessions[s.ID] = s.Clone()
	m.SaveCalls++
	return nil
}

func (m *MockStore) LoadSessions(ctx context.Context) (map[string]*state.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	out := make(map[string]*state.Session, len(m.sessions))
	for id, s := range m.sessions {
		out[id] = s.Clone()
	}
	return out, nil
}

func (m *MockStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteError != nil {
		return m.DeleteError
	}
	delete(m.sessions, id)
	m.DeleteCalls++
	return nil
}

func (m *MockStore) SaveActiveID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.activeID = id
	return nil
}

func (m *MockStore) LoadActiveID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadError != nil {
		return "", m.LoadError
	}
	return m.activeID, nil
}
