package session

import (
	"sync"

	"github.com/youme-api/internal/domain"
)

// Session holds the signed-in identity for one client. Components that need
// the current user take a *Session instead of reaching for global state.
type Session struct {
	mu       sync.RWMutex
	identity *domain.Identity
}

// New returns a session bound to id, or an empty one when id is nil.
func New(id *domain.Identity) *Session {
	s := &Session{}
	s.set(id)
	return s
}

// Current returns a copy of the signed-in identity, or nil.
func (s *Session) Current() *domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	cp := *s.identity
	return &cp
}

func (s *Session) set(id *domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == nil {
		s.identity = nil
		return
	}
	cp := *id
	s.identity = &cp
}

// Clear drops the identity and any tokens it carried.
func (s *Session) Clear() { s.set(nil) }
