package session

import (
	"errors"
	"sync"
)

var (
	ErrDuplicateToken  = errors.New("session token already in use")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session already has two players")
)

// Registry is the process-wide mapping from session token to live session.
// All operations are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Create inserts a new session under its token. Returns ErrDuplicateToken if
// the token is already taken.
func (r *Registry) Create(token string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[token]; exists {
		return ErrDuplicateToken
	}
	r.sessions[token] = s
	return nil
}

// Get looks up a session by token.
func (r *Registry) Get(token string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, exists := r.sessions[token]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes a session. Deleting an absent token is a no-op, so teardown
// races cannot crash the registry.
func (r *Registry) Delete(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
