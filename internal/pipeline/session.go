package pipeline

import (
	"sync"

	"github.com/pagepress/pagepress/internal/domain"
)

// SessionStore holds the single most-recently-completed run. Each
// completed run replaces the slot atomically; no history is retained.
// Downstream consumers read the session and must not mutate
// pipeline-owned files.
type SessionStore struct {
	mu      sync.RWMutex
	current *domain.ProcessingSession
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Replace swaps in the new session, discarding the previous one.
func (s *SessionStore) Replace(session *domain.ProcessingSession) {
	s.mu.Lock()
	s.current = session
	s.mu.Unlock()
}

// Current returns the most recently completed session, or nil if no run
// has completed yet.
func (s *SessionStore) Current() *domain.ProcessingSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
