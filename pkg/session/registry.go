package session

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/voicecore/pkg/backend"
)

// Registry keeps at most one live session per surface. Claiming a surface
// that already has a session stops the old one first.
type Registry struct {
	mu       sync.Mutex
	sessions map[backend.Surface]Session
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[backend.Surface]Session),
		logger:   logger.With("component", "session.registry"),
	}
}

// Claim makes s the live session for surface, stopping any previous one.
func (r *Registry) Claim(surface backend.Surface, s Session) {
	r.mu.Lock()
	prev := r.sessions[surface]
	r.sessions[surface] = s
	r.mu.Unlock()

	if prev != nil && prev != s {
		r.logger.Info("replacing live session", "surface", surface)
		_ = prev.Stop()
	}
}

// Release clears surface if s is still its live session.
func (r *Registry) Release(surface backend.Surface, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[surface] == s {
		delete(r.sessions, surface)
	}
}

// Active returns the live session for surface, if any.
func (r *Registry) Active(surface backend.Surface) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[surface]
	return s, ok
}

// StopAll stops and forgets every session.
func (r *Registry) StopAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[backend.Surface]Session)
	r.mu.Unlock()

	for surface, s := range sessions {
		r.logger.Debug("stopping session", "surface", surface)
		_ = s.Stop()
	}
}
