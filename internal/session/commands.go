package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/meetloop/callcore/internal/core"
	"github.com/meetloop/callcore/internal/domain"
)

// Start begins random-mode searching. Blocks the caller (not the loop) until
// local media is acquired; fails with ErrAlreadyInProgress outside Idle and
// with ErrPermissionDenied / ErrMediaAcquisitionFailed on capture failure,
// reverting to Idle.
func (s *Session) Start(ctx context.Context) error {
	res := make(chan error, 1)
	s.post(func() { s.startLoop(ctx, res) })
	select {
	case err := <-res:
		return err
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) startLoop(ctx context.Context, res chan<- error) {
	if s.state != StateIdle {
		res <- ErrAlreadyInProgress
		return
	}
	if !s.guard.tryBegin(opSearching) {
		res <- ErrAlreadyInProgress
		return
	}
	s.setState(StateSearching)
	s.flags.Started = true
	s.flags.Loading = true
	s.flags.Inactive = false

	gen := s.gen
	go func() {
		h, err := s.media.AcquireLocal(ctx, core.MediaConstraints{Video: true, Audio: true, FacingFront: true})
		s.post(func() { s.finishStart(gen, h, err, res) })
	}()
}

func (s *Session) finishStart(gen uint64, h domain.StreamHandle, err error, res chan<- error) {
	if s.discardLate(gen) || s.state != StateSearching {
		s.guard.abort(opSearching)
		if err == nil {
			s.media.ReleaseLocal()
		}
		res <- ErrInvalidState
		return
	}
	if err != nil {
		s.guard.abort(opSearching)
		s.setState(StateIdle)
		s.flags.Started = false
		s.flags.Loading = false
		res <- s.mapAcquireErr(err)
		return
	}
	s.guard.finish(opSearching)
	s.applyLocalStream(h)
	s.sendSignal("match-request", s.signal.SendMatchRequest())
	s.publish(core.Searching{})
	res <- nil
}

// Stop leaves random mode: tears down any current match and stops searching.
// No-op in Idle.
func (s *Session) Stop() error {
	return s.exec(func() error {
		if s.state == StateIdle {
			return nil
		}
		if s.call != nil && s.call.Mode == domain.ModeDirect {
			return ErrInvalidState
		}
		if !s.guard.tryBegin(opStopping) {
			return ErrAlreadyInProgress
		}
		defer s.guard.finish(opStopping)

		if s.call != nil {
			s.endCallLoop(core.EndReasonLocal, true, false)
			return nil
		}
		s.sendSignal("match-stop", s.signal.SendMatchStop())
		s.teardownToIdle(false)
		return nil
	})
}

// Next tears down the current peer link and re-enters searching. Debounced:
// a second call inside the cooldown is rejected, never queued, so the
// previous room is fully closed before a new one opens.
func (s *Session) Next(ctx context.Context) error {
	return s.exec(func() error {
		if s.call != nil && s.call.Mode != domain.ModeRandom {
			return ErrInvalidState
		}
		if !s.state.canNext() {
			return ErrInvalidState
		}
		if !s.guard.tryBegin(opSearching) {
			return ErrAlreadyInProgress
		}
		defer s.guard.finish(opSearching)

		if s.call != nil {
			s.teardownPeerLink()
		}
		s.setState(StateSearching)
		s.flags.Loading = true
		s.sendSignal("next", s.signal.SendNext())
		s.publish(core.Searching{})
		return nil
	})
}

// CallFriend dials a direct call to peer. Fails with ErrInvalidState if a
// call is already active.
func (s *Session) CallFriend(ctx context.Context, peer domain.UserID) error {
	res := make(chan error, 1)
	s.post(func() { s.callFriendLoop(ctx, peer, res) })
	select {
	case err := <-res:
		return err
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) callFriendLoop(ctx context.Context, peer domain.UserID, res chan<- error) {
	if s.state != StateIdle {
		res <- ErrInvalidState
		return
	}
	if !s.guard.tryBegin(opSearching) {
		res <- ErrAlreadyInProgress
		return
	}
	s.setState(StateDialing)
	s.flags.Inactive = false

	gen := s.gen
	go func() {
		h, err := s.media.AcquireLocal(ctx, core.MediaConstraints{Video: true, Audio: true, FacingFront: true})
		s.post(func() { s.finishCallFriend(gen, peer, h, err, res) })
	}()
}

func (s *Session) finishCallFriend(gen uint64, peer domain.UserID, h domain.StreamHandle, err error, res chan<- error) {
	if s.discardLate(gen) || s.state != StateDialing {
		s.guard.abort(opSearching)
		if err == nil {
			s.media.ReleaseLocal()
		}
		res <- ErrInvalidState
		return
	}
	if err != nil {
		s.guard.abort(opSearching)
		s.setState(StateIdle)
		res <- s.mapAcquireErr(err)
		return
	}
	s.guard.finish(opSearching)
	s.applyLocalStream(h)
	s.call = domain.NewDirectCall("", peer, domain.DirectionInitiator)
	s.publish(core.PartnerChanged{UserID: peer})
	s.sendSignal("call-request", s.signal.SendCallRequest(peer))
	s.setState(StateRingingRemote)
	res <- nil
}

// AcceptCall answers an incoming direct call. The signaling handler set is
// attached at construction, so the backend's accept acknowledgment cannot be
// lost to a handler race.
func (s *Session) AcceptCall(ctx context.Context, id domain.CallID, from domain.UserID) error {
	res := make(chan error, 1)
	s.post(func() { s.acceptCallLoop(ctx, id, from, res) })
	select {
	case err := <-res:
		return err
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) acceptCallLoop(ctx context.Context, id domain.CallID, from domain.UserID, res chan<- error) {
	if s.state != StateIdle && s.state != StateRingingLocal {
		res <- ErrInvalidState
		return
	}
	if !s.guard.tryBegin(opSearching) {
		res <- ErrAlreadyInProgress
		return
	}
	s.pendingIncoming = nil
	s.flags.Inactive = false

	gen := s.gen
	go func() {
		h, err := s.media.AcquireLocal(ctx, core.MediaConstraints{Video: true, Audio: true, FacingFront: true})
		s.post(func() { s.finishAccept(gen, id, from, h, err, res) })
	}()
}

func (s *Session) finishAccept(gen uint64, id domain.CallID, from domain.UserID, h domain.StreamHandle, err error, res chan<- error) {
	if s.discardLate(gen) {
		s.guard.abort(opSearching)
		if err == nil {
			s.media.ReleaseLocal()
		}
		res <- ErrInvalidState
		return
	}
	if err != nil {
		s.guard.abort(opSearching)
		s.setState(StateIdle)
		res <- s.mapAcquireErr(err)
		return
	}
	s.guard.finish(opSearching)
	s.applyLocalStream(h)
	s.call = domain.NewDirectCall(id, from, domain.DirectionReceiver)
	s.camGuard.onAnswered()
	s.setState(StateNegotiating)
	s.flags.Started = true
	s.flags.Loading = true
	s.sendSignal("call-accept", s.signal.SendCallAccept(id))
	s.publish(core.CallIDChanged{CallID: id})
	s.publish(core.PartnerChanged{UserID: from})
	s.publish(core.CallAnswered{CallID: id})
	// Receiver side answers the initiator's offer; connection is built on
	// InOffer arrival.
	res <- nil
}

// DeclineCall rejects an incoming direct call.
func (s *Session) DeclineCall(id domain.CallID) error {
	return s.exec(func() error {
		s.sendSignal("call-decline", s.signal.SendCallDecline(id))
		if s.state == StateRingingLocal {
			s.pendingIncoming = nil
			s.setState(StateIdle)
		}
		return nil
	})
}

// EndCall hangs up from either party's perspective. Idempotent: repeated
// calls once in Ending/Idle are no-ops; local tracks stop synchronously
// before any other resource is released.
func (s *Session) EndCall() error {
	return s.exec(func() error {
		s.endCallLoop(core.EndReasonLocal, true, false)
		return nil
	})
}

// endCallLoop is the shared teardown. Emits the media-clearing events first
// and CallEnded last: once CallEnded is out no media event for this call may
// follow.
func (s *Session) endCallLoop(reason core.EndReason, sendHangup, markInactive bool) {
	if s.state == StateIdle || s.state == StateEnding {
		if markInactive && !s.flags.Inactive {
			s.flags.Inactive = true
		}
		return
	}
	s.setState(StateEnding)
	s.gen++

	s.media.ReleaseLocal()
	s.media.CloseConnection()
	if sendHangup && s.call != nil {
		s.sendSignal("call-end", s.signal.SendCallEnd())
	}
	s.clearStreams()
	s.clearCall()
	s.camGuard.reset()

	s.flags.Started = false
	s.flags.Loading = false
	s.flags.Inactive = markInactive
	s.setState(StateIdle)
	s.publish(core.CallEnded{Reason: reason})
}

// ToggleMic flips the local microphone.
func (s *Session) ToggleMic() error {
	return s.exec(func() error {
		if s.local.handle.IsZero() {
			return ErrInvalidState
		}
		if !s.guard.tryBegin(opMicToggle) {
			return ErrAlreadyInProgress
		}
		next := !s.flags.MicOn
		if err := s.media.SetTrackEnabled(s.ctx, core.TrackAudio, next); err != nil {
			s.guard.abort(opMicToggle)
			return fmt.Errorf("toggle mic: %w", err)
		}
		s.guard.finish(opMicToggle)
		s.flags.MicOn = next
		s.publish(core.MicStateChanged{On: next})
		return nil
	})
}

// ToggleCam flips the local camera. Asynchronous: may renegotiate. A second
// toggle while one is in flight is rejected. On negotiation failure the
// pre-toggle value is kept and re-announced.
func (s *Session) ToggleCam(ctx context.Context) error {
	res := make(chan error, 1)
	s.post(func() { s.toggleCamLoop(ctx, res) })
	select {
	case err := <-res:
		return err
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) toggleCamLoop(ctx context.Context, res chan<- error) {
	if s.local.handle.IsZero() {
		res <- ErrInvalidState
		return
	}
	if !s.guard.tryBegin(opCamToggle) {
		res <- ErrAlreadyInProgress
		return
	}
	target := !s.flags.CamOn
	gen := s.gen
	go func() {
		err := s.media.SetTrackEnabled(ctx, core.TrackVideo, target)
		s.post(func() { s.finishToggleCam(gen, target, err, res) })
	}()
}

func (s *Session) finishToggleCam(gen uint64, target bool, err error, res chan<- error) {
	s.guard.finish(opCamToggle)
	if s.discardLate(gen) {
		res <- ErrInvalidState
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Bool("target", target).Msg("camera toggle failed, reverting")
		// Re-announce the unchanged value so the UI reflects the revert.
		s.publish(core.CamStateChanged{On: s.flags.CamOn})
		res <- fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
		return
	}
	s.flags.CamOn = target
	s.camGuard.noteUserToggle(target)
	s.publish(core.CamStateChanged{On: target})
	s.sendSignal("camera-state", s.signal.SendCameraState(target))
	res <- nil
}

// FlipCam switches between front and back cameras, replacing the local
// stream handle.
func (s *Session) FlipCam(ctx context.Context) error {
	res := make(chan error, 1)
	s.post(func() { s.flipCamLoop(ctx, res) })
	select {
	case err := <-res:
		return err
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) flipCamLoop(ctx context.Context, res chan<- error) {
	if s.local.handle.IsZero() {
		res <- ErrInvalidState
		return
	}
	if !s.guard.tryBegin(opCamToggle) {
		res <- ErrAlreadyInProgress
		return
	}
	gen := s.gen
	go func() {
		h, err := s.media.FlipCamera(ctx)
		s.post(func() { s.finishFlipCam(gen, h, err, res) })
	}()
}

func (s *Session) finishFlipCam(gen uint64, h domain.StreamHandle, err error, res chan<- error) {
	s.guard.finish(opCamToggle)
	if s.discardLate(gen) {
		res <- ErrInvalidState
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("camera flip failed")
		res <- fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
		return
	}
	s.reconcileLocal(h)
	res <- nil
}

// ToggleRemoteAudio mutes/unmutes the remote audio render path locally only;
// the remote peer is unaffected. Returns the new muted state.
func (s *Session) ToggleRemoteAudio() (bool, error) {
	var muted bool
	err := s.exec(func() error {
		if !s.guard.tryBegin(opRemoteAudio) {
			return ErrAlreadyInProgress
		}
		defer s.guard.finish(opRemoteAudio)
		s.remoteAudioOn = !s.remoteAudioOn
		s.media.SetRemoteAudioEnabled(s.remoteAudioOn)
		muted = !s.remoteAudioOn
		return nil
	})
	return muted, err
}

// Cleanup releases every resource unconditionally. Safe from any state,
// idempotent; used on unmount and backgrounding. Emits nothing: late events
// must not resurrect a torn-down call in the UI.
func (s *Session) Cleanup() error {
	return s.exec(func() error {
		s.cleanupLoop()
		return nil
	})
}

func (s *Session) cleanupLoop() {
	s.gen++
	s.media.ReleaseLocal()
	s.media.CloseConnection()
	s.call = nil
	s.pendingIncoming = nil
	s.local = streamView{}
	s.remote = streamView{}
	s.flags = domain.NewSessionFlags()
	s.remoteAudioOn = true
	s.inactivePending = false
	s.guard.reset()
	s.camGuard.reset()
	s.state = StateIdle
	log.Info().Str("module", "session").Msg("cleaned up")
}

func (s *Session) mapAcquireErr(err error) error {
	if errors.Is(err, core.ErrPermissionDenied) {
		return ErrPermissionDenied
	}
	if errors.Is(err, core.ErrMediaAcquisitionFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrMediaAcquisitionFailed, err)
}
