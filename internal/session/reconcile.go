package session

import (
	"github.com/rs/zerolog/log"

	"github.com/meetloop/callcore/internal/core"
	"github.com/meetloop/callcore/internal/domain"
)

// streamChange classifies an incoming stream update against the held handle.
// The media layer reuses stream objects across renegotiation, so comparing
// against nil or a fresh object would flicker the UI between "connected" and
// "away"; identity has to be reconciled explicitly.
type streamChange int

const (
	// streamUnchanged: same instance, track set unchanged. No event.
	streamUnchanged streamChange = iota
	// streamRefreshed: same instance but a track was added or became live.
	// The stream-changed event is re-emitted with a renewed view key so the
	// UI re-renders without treating it as a new peer.
	streamRefreshed
	// streamReplaced: a different instance. Full reconciliation.
	streamReplaced
)

func classifyStream(prev, next domain.StreamHandle) streamChange {
	switch {
	case prev.IsZero() && next.IsZero():
		return streamUnchanged
	case prev.IsZero() || next.IsZero():
		return streamReplaced
	case prev.StreamID != next.StreamID:
		return streamReplaced
	case prev.TrackState == next.TrackState &&
		prev.VideoEnabled == next.VideoEnabled &&
		prev.AudioEnabled == next.AudioEnabled &&
		prev.MutedByRemote == next.MutedByRemote:
		return streamUnchanged
	default:
		return streamRefreshed
	}
}

// applyLocalStream installs the first local handle after acquisition.
func (s *Session) applyLocalStream(h domain.StreamHandle) {
	h.ReceivedAt = s.clock.Now()
	s.local = streamView{handle: h, viewKey: newViewKey()}
	s.flags.CamOn = h.VideoEnabled && !s.camGuard.stickyDisabled()
	s.flags.MicOn = h.AudioEnabled
	s.publish(core.LocalStreamChanged{Handle: h, ViewKey: s.local.viewKey})
}

// reconcileLocal handles local replacements (camera flip, mode change).
func (s *Session) reconcileLocal(h domain.StreamHandle) {
	switch classifyStream(s.local.handle, h) {
	case streamUnchanged:
		return
	case streamRefreshed:
		s.local.handle = h
		s.local.viewKey = newViewKey()
	case streamReplaced:
		h.ReceivedAt = s.clock.Now()
		s.local = streamView{handle: h, viewKey: newViewKey()}
	}
	s.publish(core.LocalStreamChanged{Handle: s.local.handle, ViewKey: s.local.viewKey})
}

// reconcileRemote handles every remote stream update. Runs on the loop.
func (s *Session) reconcileRemote(h domain.StreamHandle) {
	if s.call == nil {
		log.Debug().Str("module", "session").Str("stream", h.StreamID).Msg("remote stream without call, ignoring")
		return
	}
	switch classifyStream(s.remote.handle, h) {
	case streamUnchanged:
		return
	case streamRefreshed:
		received := s.remote.handle.ReceivedAt
		h.ReceivedAt = received
		s.remote.handle = h
		s.remote.viewKey = newViewKey()
	case streamReplaced:
		h.ReceivedAt = s.clock.Now()
		s.remote = streamView{handle: h, viewKey: newViewKey()}
	}
	s.publish(core.RemoteStreamChanged{Handle: s.remote.handle, ViewKey: s.remote.viewKey})

	if s.state == StateMatched || s.state == StateNegotiating {
		if !h.IsZero() {
			s.setState(StateActive)
		}
	}
	if !h.IsZero() && s.flags.Loading {
		s.flags.Loading = false
	}
	s.syncRemoteCam()
}

// syncRemoteCam recomputes the derived remote-camera flag: live video and the
// partner not hiding in PiP.
func (s *Session) syncRemoteCam() {
	on := s.remote.handle.VideoLive() && !s.pip.PartnerInPiP
	if on != s.flags.RemoteCamOn {
		s.flags.RemoteCamOn = on
		s.publish(core.RemoteCamStateChanged{On: on})
	}
}

// clearStreams drops both handles, announcing the clears. Emitted before
// CallEnded so no media event trails the terminal one.
func (s *Session) clearStreams() {
	if !s.local.handle.IsZero() {
		s.local = streamView{}
		s.publish(core.LocalStreamChanged{})
	}
	if !s.remote.handle.IsZero() {
		s.remote = streamView{}
		s.publish(core.RemoteStreamChanged{})
	}
	if s.flags.RemoteCamOn {
		s.flags.RemoteCamOn = false
		s.publish(core.RemoteCamStateChanged{On: false})
	}
}

// clearCall zeroes the call fields, announcing each one that was set.
func (s *Session) clearCall() {
	if s.call == nil {
		return
	}
	if s.call.PartnerConnectionID != "" || s.call.PartnerUserID != "" {
		s.publish(core.PartnerChanged{})
	}
	if s.call.RoomID != "" {
		s.publish(core.RoomChanged{})
	}
	if s.call.CallID != "" {
		s.publish(core.CallIDChanged{})
	}
	s.call = nil
}

// teardownPeerLink drops the peer but keeps local capture; used by Next.
func (s *Session) teardownPeerLink() {
	s.gen++
	s.media.CloseConnection()
	if !s.remote.handle.IsZero() {
		s.remote = streamView{}
		s.publish(core.RemoteStreamChanged{})
	}
	if s.flags.RemoteCamOn {
		s.flags.RemoteCamOn = false
		s.publish(core.RemoteCamStateChanged{On: false})
	}
	s.clearCall()
	s.camGuard.reset()
}

// teardownToIdle releases everything and returns to Idle without emitting
// CallEnded; for Stop while merely searching.
func (s *Session) teardownToIdle(markInactive bool) {
	s.gen++
	s.media.ReleaseLocal()
	s.media.CloseConnection()
	s.clearStreams()
	s.clearCall()
	s.pendingIncoming = nil
	s.camGuard.reset()
	s.flags.Started = false
	s.flags.Loading = false
	s.flags.Inactive = markInactive
	s.setState(StateIdle)
}
