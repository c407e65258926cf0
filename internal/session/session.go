// Package session carries the acting user's identity and chain explicitly through every call.
package session

import (
	"strings"
	"sync"

	"transfer-backend/internal/utils"

	"github.com/google/uuid"
)

// Session immutable identity a request or a watcher acts for
type Session struct {
	ID          string
	UserAddress string // lower-cased
	Chain       *utils.ChainInfo
}

// New creates a session with a fresh id
func New(userAddress string, chain *utils.ChainInfo) *Session {
	return &Session{
		ID:          uuid.New().String(),
		UserAddress: strings.ToLower(strings.TrimSpace(userAddress)),
		Chain:       chain,
	}
}

// ChainID active chain id, 0 when no chain is selected
func (s *Session) ChainID() uint64 {
	if s == nil || s.Chain == nil {
		return 0
	}
	return s.Chain.ChainID
}

// Listener is called with the previous and the new session after a switch
type Listener func(prev, next *Session)

// Manager owns the current session of one long-lived consumer (CLI run, websocket connection).
type Manager struct {
	mu        sync.RWMutex
	current   *Session
	listeners []Listener
}

// NewManager creates a manager; initial may be nil
func NewManager(initial *Session) *Manager {
	return &Manager{current: initial}
}

// Current returns the active session, nil before the first Switch
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnSwitch registers a listener
func (m *Manager) OnSwitch(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Switch installs a new session and notifies listeners. Sessions held by
// in-flight work are not modified.
func (m *Manager) Switch(userAddress string, chain *utils.ChainInfo) *Session {
	next := New(userAddress, chain)

	m.mu.Lock()
	prev := m.current
	m.current = next
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l(prev, next)
	}
	return next
}
