package session

import (
	"sync"
)

// Manager owns the single State of a process and serializes every access to
// it behind one mutex. All methods are safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	state *State
}

// NewManager wraps st for shared use.
//
// Precondition: st must be non-nil and must not be used directly afterwards.
func NewManager(st *State) *Manager {
	return &Manager{state: st}
}

// Do runs fn with exclusive access to the state and returns its error.
// fn must not retain the *State after returning.
func (m *Manager) Do(fn func(st *State) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state)
}

// PlayerCount returns the number of players on the roster.
func (m *Manager) PlayerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.Players)
}

// ConnectedCount returns the number of players with a live connection.
func (m *Manager) ConnectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.Connected())
}
