package session

import (
	"github.com/rs/zerolog/log"

	"github.com/meetloop/callcore/internal/core"
)

// Lifecycle-facing commands, driven by the lifecycle guard. Holding camera
// and mic in the background is never acceptable, but tearing down on every
// transient inactivation was a regression once; hence the pending flag.

// HandleBackground force-ends any active call and marks the session inactive
// so a still-mounted screen renders disabled controls.
func (s *Session) HandleBackground() error {
	return s.exec(func() error {
		s.inactivePending = false
		s.sendSignal("presence", s.signal.SendPresence("away"))
		if s.state == StateIdle {
			return nil
		}
		if s.call != nil {
			s.endCallLoop(core.EndReasonBackground, true, true)
			return nil
		}
		s.teardownToIdle(true)
		return nil
	})
}

// HandleTransientInactive marks a brief OS interruption without tearing
// anything down; a following background transition still ends the call.
func (s *Session) HandleTransientInactive() error {
	return s.exec(func() error {
		s.inactivePending = true
		return nil
	})
}

// HandleForeground refreshes both render keys to counter stale GPU texture
// bindings and re-announces the camera state. A camera the user explicitly
// turned off stays off. After a merely transient interruption the textures
// were never invalidated, so the key refresh is skipped.
func (s *Session) HandleForeground() error {
	return s.exec(func() error {
		s.sendSignal("presence", s.signal.SendPresence("online"))
		if s.inactivePending {
			s.inactivePending = false
			if s.call != nil {
				s.sendSignal("camera-state", s.signal.SendCameraState(s.flags.CamOn))
			}
			return nil
		}
		if !s.local.handle.IsZero() {
			s.local.viewKey = newViewKey()
			s.publish(core.LocalStreamChanged{Handle: s.local.handle, ViewKey: s.local.viewKey})
		}
		if !s.remote.handle.IsZero() {
			s.remote.viewKey = newViewKey()
			s.publish(core.RemoteStreamChanged{Handle: s.remote.handle, ViewKey: s.remote.viewKey})
		}
		if s.call != nil {
			s.sendSignal("camera-state", s.signal.SendCameraState(s.flags.CamOn))
		}
		log.Debug().Str("module", "session").Msg("foreground refresh")
		return nil
	})
}

// HandlePiP records local picture-in-picture visibility and tells the peer.
func (s *Session) HandlePiP(visible bool) error {
	return s.exec(func() error {
		if s.pip.Visible == visible {
			return nil
		}
		s.pip.Visible = visible
		s.sendSignal("pip-state", s.signal.SendPiPState(visible))
		return nil
	})
}
