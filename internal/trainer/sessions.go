package trainer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kartoza/decision-forecast/internal/apperr"
)

// Sessions keeps trained sessions in memory so they can be evaluated later.
// The oldest session is evicted once the limit is reached.
type Sessions struct {
	mu       sync.RWMutex
	limit    int
	sessions map[string]*Session
}

// NewSessions creates a registry holding at most limit sessions
func NewSessions(limit int) *Sessions {
	if limit <= 0 {
		limit = 16
	}
	return &Sessions{limit: limit, sessions: make(map[string]*Session)}
}

// Put stores a session
func (s *Sessions) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.sessions) >= s.limit {
		var oldest *Session
		for _, existing := range s.sessions {
			if oldest == nil || existing.CreatedAt.Before(oldest.CreatedAt) {
				oldest = existing
			}
		}
		delete(s.sessions, oldest.ID)
	}
	s.sessions[session.ID] = session
}

// Get retrieves a session by ID
func (s *Sessions) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	return session, nil
}

// List returns all sessions, newest first
func (s *Sessions) List() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Delete removes a session
func (s *Sessions) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}
