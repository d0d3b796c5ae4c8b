// Package registry is the explicit home of live sessions, with defined
// create and destroy points. Collaborators that need the current session (PiP
// surface, lifecycle guard) receive the handle from here instead of reading
// an ambient singleton.
package registry

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meetloop/callcore/internal/config"
	"github.com/meetloop/callcore/internal/session"
)

// Handle names a registered session.
type Handle string

type Registry struct {
	mu       sync.RWMutex
	sessions map[Handle]*session.Session
}

func New() *Registry {
	return &Registry{sessions: make(map[Handle]*session.Session)}
}

// Create builds a session from its dependencies and registers it.
func (r *Registry) Create(cfg *config.Config, deps session.Deps) (Handle, *session.Session) {
	s := session.New(cfg, deps)
	h := Handle(uuid.NewString())
	r.mu.Lock()
	r.sessions[h] = s
	r.mu.Unlock()
	log.Info().Str("module", "registry").Str("handle", string(h)).Msg("session created")
	return h, s
}

func (r *Registry) Get(h Handle) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[h]
	return s, ok
}

// Destroy cleans the session up and forgets it. Safe to call twice.
func (r *Registry) Destroy(h Handle) {
	r.mu.Lock()
	s, ok := r.sessions[h]
	delete(r.sessions, h)
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := s.Cleanup(); err != nil {
		log.Warn().Err(err).Str("module", "registry").Str("handle", string(h)).Msg("cleanup on destroy")
	}
	s.Close()
	log.Info().Str("module", "registry").Str("handle", string(h)).Msg("session destroyed")
}

// Len reports how many sessions are registered; normally zero or one.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
