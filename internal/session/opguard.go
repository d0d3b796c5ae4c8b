package session

import (
	"sync"
	"time"

	"github.com/meetloop/callcore/internal/core"
)

// opCategory groups commands that share an in-flight guard. Rapid UI trigger
// storms (double-taps, back-button mashing) collapse into one operation per
// category; concurrent invocations are rejected, never queued.
type opCategory int

const (
	opStopping opCategory = iota
	opSearching
	opMicToggle
	opCamToggle
	opRemoteAudio
)

func (c opCategory) String() string {
	switch c {
	case opStopping:
		return "stopping"
	case opSearching:
		return "searching"
	case opMicToggle:
		return "mic-toggle"
	case opCamToggle:
		return "cam-toggle"
	case opRemoteAudio:
		return "remote-audio"
	default:
		return "unknown"
	}
}

// opGuard is a small per-category state machine: Idle -> InFlight -> Cooldown
// -> Idle. tryBegin succeeds only from Idle; finish enters the cooldown whose
// expiry is checked lazily against the clock.
type opGuard struct {
	clock core.Clock

	mu       sync.Mutex
	inFlight map[opCategory]bool
	readyAt  map[opCategory]time.Time
	cooldown map[opCategory]time.Duration
}

func newOpGuard(clock core.Clock, cooldowns map[opCategory]time.Duration) *opGuard {
	return &opGuard{
		clock:    clock,
		inFlight: make(map[opCategory]bool),
		readyAt:  make(map[opCategory]time.Time),
		cooldown: cooldowns,
	}
}

// tryBegin claims the category. Returns false while a previous operation is
// still running or cooling down.
func (g *opGuard) tryBegin(c opCategory) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[c] {
		return false
	}
	if ready, ok := g.readyAt[c]; ok && g.clock.Now().Before(ready) {
		return false
	}
	g.inFlight[c] = true
	return true
}

// finish releases the category and starts its cooldown.
func (g *opGuard) finish(c opCategory) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight[c] = false
	if d := g.cooldown[c]; d > 0 {
		g.readyAt[c] = g.clock.Now().Add(d)
	}
}

// abort releases the category without a cooldown, for operations that failed
// validation before doing anything.
func (g *opGuard) abort(c opCategory) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight[c] = false
}

// reset clears all guards; used by Cleanup so a fresh screen mount never
// inherits stale cooldowns.
func (g *opGuard) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = make(map[opCategory]bool)
	g.readyAt = make(map[opCategory]time.Time)
}
