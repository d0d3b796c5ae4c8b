// Package lifecycle decides what app foreground/background and PiP
// transitions do to the active session.
package lifecycle

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// AppState mirrors the platform application state.
type AppState int

const (
	AppActive AppState = iota
	AppInactive
	AppBackground
)

func (s AppState) String() string {
	switch s {
	case AppInactive:
		return "inactive"
	case AppBackground:
		return "background"
	default:
		return "active"
	}
}

// Control is the slice of the session the guard drives. The handle is passed
// in explicitly; the guard never reaches for a process-wide session.
type Control interface {
	HandleBackground() error
	HandleTransientInactive() error
	HandleForeground() error
	HandlePiP(visible bool) error
}

// Guard applies policy: background kills the call (camera/mic must not run in
// the background), a transient inactive only marks state, returning to the
// foreground refreshes render keys.
type Guard struct {
	sess Control

	mu   sync.Mutex
	last AppState
}

func NewGuard(sess Control) *Guard {
	return &Guard{sess: sess, last: AppActive}
}

// OnAppState feeds a platform app-state transition into the guard.
func (g *Guard) OnAppState(next AppState) {
	g.mu.Lock()
	prev := g.last
	g.last = next
	g.mu.Unlock()
	if prev == next {
		return
	}
	log.Info().Str("module", "lifecycle").Str("from", prev.String()).Str("to", next.String()).Msg("app state")

	var err error
	switch next {
	case AppBackground:
		err = g.sess.HandleBackground()
	case AppInactive:
		err = g.sess.HandleTransientInactive()
	case AppActive:
		err = g.sess.HandleForeground()
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "lifecycle").Str("state", next.String()).Msg("session lifecycle handler failed")
	}
}

// OnPiP feeds local picture-in-picture visibility changes into the guard.
func (g *Guard) OnPiP(visible bool) {
	if err := g.sess.HandlePiP(visible); err != nil {
		log.Warn().Err(err).Str("module", "lifecycle").Bool("visible", visible).Msg("pip handler failed")
	}
}
