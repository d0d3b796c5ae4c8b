package session

import (
	"time"

	"github.com/meetloop/callcore/internal/core"
)

// camGuard protects the camera against spurious disables right after a call
// is answered. Accept races can replay a stale "camera off" signaling echo
// before the media pipe stabilizes; inside the window such non-user requests
// are refused. A deliberate user disable is remembered (sticky) so returning
// from background or PiP never re-enables a camera the user turned off.
type camGuard struct {
	clock  core.Clock
	window time.Duration

	answeredAt   time.Time
	userDisabled bool
}

func newCamGuard(clock core.Clock, window time.Duration) *camGuard {
	return &camGuard{clock: clock, window: window}
}

// onAnswered opens the protection window.
func (g *camGuard) onAnswered() {
	g.answeredAt = g.clock.Now()
}

// reset clears the window and the sticky disable, for call teardown.
func (g *camGuard) reset() {
	g.answeredAt = time.Time{}
	g.userDisabled = false
}

// noteUserToggle records a deliberate user choice.
func (g *camGuard) noteUserToggle(enabled bool) {
	g.userDisabled = !enabled
}

// allowDisable decides whether a camera-disable request may take effect.
// User requests are always honored; non-user requests are refused inside the
// protection window unless the user had already disabled the camera.
func (g *camGuard) allowDisable(userInitiated bool) bool {
	if userInitiated {
		return true
	}
	if g.userDisabled {
		return true
	}
	if g.answeredAt.IsZero() {
		return true
	}
	return g.clock.Now().Sub(g.answeredAt) >= g.window
}

// stickyDisabled reports whether the user explicitly turned the camera off.
func (g *camGuard) stickyDisabled() bool { return g.userDisabled }
