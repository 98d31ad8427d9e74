package chat

import (
	"sort"
	"sync"
)

// Registry maps each user ID to its current session, 1:1. Registering over an
// existing entry supersedes it; a disconnect for a superseded handle must not
// evict the newer registration.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{users: map[string]*Session{}}
}

// Register stores s as the current session for its user, returning the
// superseded session if one existed. The overwrite is atomic: once Register
// returns, the old handle is no longer current.
func (r *Registry) Register(s *Session) (prev *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev = r.users[s.UserID]
	r.users[s.UserID] = s
	return prev
}

// Unregister removes the mapping only if s is still the current session for
// its user. A late disconnect racing a newer connect is a no-op.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[s.UserID]
	if !ok || cur != s {
		return false
	}
	delete(r.users, s.UserID)
	return true
}

func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.users[userID]
	return s, ok
}

// Snapshot returns the current sessions ordered by user ID, so fan-out order
// is deterministic.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.users))
	for _, s := range r.users {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
