package session

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/meetloop/callcore/internal/core"
	"github.com/meetloop/callcore/internal/domain"
	"github.com/meetloop/callcore/internal/roomtoken"
)

// onInbound serializes backend pushes onto the loop.
func (s *Session) onInbound(in core.Inbound) {
	s.post(func() { s.handleInbound(in) })
}

func (s *Session) handleInbound(in core.Inbound) {
	switch m := in.(type) {
	case core.InWelcome:
		s.selfConn = m.ConnectionID
	case core.InMatchFound:
		s.handleMatchFound(m)
	case core.InCallIncoming:
		s.handleCallIncoming(m)
	case core.InCallAccepted:
		s.handleCallAccepted(m)
	case core.InCallDeclined:
		s.handleCallDeclined(m)
	case core.InCallEnded:
		s.endCallLoop(mapWireEndReason(m.Reason), false, false)
	case core.InCameraState:
		s.handleCameraState(m)
	case core.InRemoteMute:
		if m.Muted != s.flags.RemoteMuted {
			s.flags.RemoteMuted = m.Muted
			s.publish(core.RemoteMuteStateChanged{Muted: m.Muted})
		}
	case core.InPiPState:
		s.pip.PartnerInPiP = m.InPiP
		s.syncRemoteCam()
	case core.InMicLevel:
		s.handleMicLevel(m)
	case core.InOffer:
		s.handleOffer(m.SDP)
	case core.InAnswer:
		s.handleAnswer(m.SDP)
	case core.InCandidate:
		gen := s.gen
		go func() {
			if err := s.media.AddRemoteCandidate(m.Candidate); err != nil {
				log.Warn().Err(err).Str("module", "session").Uint64("gen", gen).Msg("add remote candidate")
			}
		}()
	case core.InDisconnected:
		s.handleDisconnected(m)
	default:
		log.Warn().Str("module", "session").Type("inbound", in).Msg("unknown inbound signal")
	}
}

func (s *Session) handleMatchFound(m core.InMatchFound) {
	if s.state != StateSearching {
		log.Info().Str("module", "session").Str("state", s.state.String()).Msg("match while not searching, ignoring")
		return
	}
	room := m.RoomID
	if room == "" && m.RoomToken != "" {
		if access, err := roomtoken.Decode(m.RoomToken); err == nil {
			room = access.RoomID
		} else {
			log.Warn().Err(err).Str("module", "session").Msg("room token decode failed")
		}
	}
	s.call = domain.NewRandomCall(m.PartnerConnectionID, m.PartnerUserID, room)
	s.camGuard.onAnswered()
	s.setState(StateMatched)
	s.publish(core.MatchFound{
		PartnerConnectionID: m.PartnerConnectionID,
		PartnerUserID:       m.PartnerUserID,
		RoomID:              room,
	})
	s.publish(core.PartnerChanged{ConnectionID: m.PartnerConnectionID, UserID: m.PartnerUserID})
	s.publish(core.RoomChanged{RoomID: room})
	s.setState(StateNegotiating)
	s.connectMedia(!m.Polite)
}

// connectMedia builds the peer connection off the loop; the impolite side
// offers first.
func (s *Session) connectMedia(initiator bool) {
	gen := s.gen
	go func() {
		if err := s.media.Connect(s.ctx, initiator); err != nil {
			log.Error().Err(err).Str("module", "session").Bool("initiator", initiator).Msg("media connect failed")
			s.post(func() {
				if s.discardLate(gen) {
					return
				}
				s.endCallLoop(core.EndReasonLocal, true, false)
			})
		}
	}()
}

func (s *Session) handleCallIncoming(m core.InCallIncoming) {
	if s.state != StateIdle {
		// Busy: reject so the caller isn't left ringing.
		s.sendSignal("call-decline", s.signal.SendCallDecline(m.CallID))
		return
	}
	s.pendingIncoming = domain.NewDirectCall(m.CallID, m.FromUserID, domain.DirectionReceiver)
	s.setState(StateRingingLocal)
	log.Info().Str("module", "session").Str("call_id", string(m.CallID)).Str("from", string(m.FromUserID)).Msg("incoming call")
}

func (s *Session) handleCallAccepted(m core.InCallAccepted) {
	if s.state != StateRingingRemote || s.call == nil {
		log.Info().Str("module", "session").Str("state", s.state.String()).Msg("accept ack while not dialing, ignoring")
		return
	}
	s.call.CallID = m.CallID
	s.call.RoomID = m.RoomID
	s.camGuard.onAnswered()
	s.setState(StateNegotiating)
	s.flags.Started = true
	s.flags.Loading = true
	s.publish(core.CallIDChanged{CallID: m.CallID})
	if m.RoomID != "" {
		s.publish(core.RoomChanged{RoomID: m.RoomID})
	}
	s.publish(core.CallAnswered{CallID: m.CallID})
	s.connectMedia(true)
}

func (s *Session) handleCallDeclined(m core.InCallDeclined) {
	if s.state != StateRingingRemote {
		return
	}
	s.publish(core.CallDeclined{CallID: m.CallID})
	s.teardownToIdle(false)
}

// handleCameraState routes a camera announcement: the partner's camera flips
// the derived remote flag, while an echo of our own state goes through the
// protection window before it may disable anything.
func (s *Session) handleCameraState(m core.InCameraState) {
	if m.From != "" && m.From == s.selfConn {
		if m.Enabled == s.flags.CamOn {
			return
		}
		if !m.Enabled && !s.camGuard.allowDisable(false) {
			// Spurious disable inside the protection window: force back on
			// and re-announce so the stale echo cannot win.
			log.Info().Str("module", "session").Msg("camera-off echo inside protection window, reverting")
			s.publish(core.CamStateChanged{On: true})
			s.sendSignal("camera-state", s.signal.SendCameraState(true))
			return
		}
		s.flags.CamOn = m.Enabled
		s.publish(core.CamStateChanged{On: m.Enabled})
		return
	}
	if s.call == nil {
		return
	}
	on := m.Enabled && !s.pip.PartnerInPiP
	if on != s.flags.RemoteCamOn {
		s.flags.RemoteCamOn = on
		s.publish(core.RemoteCamStateChanged{On: on})
	}
}

// mapWireEndReason translates a backend end reason onto the event taxonomy.
// Both hangup and a partner skipping away are remote-initiated, but the UI
// copy differs, so partner-left survives the translation.
func mapWireEndReason(wire string) core.EndReason {
	if wire == "partner-left" {
		return core.EndReasonPartnerLeft
	}
	return core.EndReasonRemote
}

func (s *Session) handleMicLevel(m core.InMicLevel) {
	level := clamp01(m.Level)
	bands := make([]float64, domain.FrequencyBandCount)
	for i := 0; i < len(bands) && i < len(m.Bands); i++ {
		bands[i] = clamp01(m.Bands[i])
	}
	s.flags.MicLevel = level
	s.flags.FrequencyBands = bands
	s.publish(core.MicLevelChanged{Level: level, Bands: bands})
}

func (s *Session) handleDisconnected(m core.InDisconnected) {
	s.publish(core.Disconnected{Err: m.Err})
	if s.state == StateIdle {
		return
	}
	if s.call != nil {
		s.endCallLoop(core.EndReasonTransportLost, false, false)
		return
	}
	s.teardownToIdle(false)
}

func (s *Session) handleOffer(sdp webrtc.SessionDescription) {
	if s.call == nil {
		return
	}
	gen := s.gen
	go func() {
		answer, err := s.media.HandleOffer(sdp)
		if err != nil {
			log.Error().Err(err).Str("module", "session").Msg("handle offer")
			return
		}
		s.post(func() {
			if s.discardLate(gen) {
				return
			}
			s.sendSignal("answer", s.signal.SendAnswer(*answer))
		})
	}()
}

func (s *Session) handleAnswer(sdp webrtc.SessionDescription) {
	if s.call == nil {
		return
	}
	go func() {
		if err := s.media.HandleAnswer(sdp); err != nil {
			log.Error().Err(err).Str("module", "session").Msg("handle answer")
		}
	}()
}

// Media pipeline callbacks; all re-enter via the loop.

func (s *Session) onRemoteStream(h domain.StreamHandle) {
	s.post(func() { s.reconcileRemote(h) })
}

func (s *Session) onLocalOffer(sdp webrtc.SessionDescription) {
	s.post(func() {
		if s.call == nil {
			return
		}
		s.sendSignal("offer", s.signal.SendOffer(sdp))
	})
}

func (s *Session) onLocalCandidate(c webrtc.ICECandidateInit) {
	s.post(func() {
		if s.call == nil {
			return
		}
		s.sendSignal("candidate", s.signal.SendCandidate(c))
	})
}

func (s *Session) onConnectionClosed() {
	s.post(func() {
		// Next/EndCall close the connection themselves and have already
		// moved on to Searching or Idle by the time this posts. Any state
		// still holding a call, Active or mid-negotiation alike, must end
		// it; a failed link before the first remote track would otherwise
		// leave the machine stuck in Negotiating.
		if s.state.inCall() {
			log.Info().Str("module", "session").Str("state", s.state.String()).Msg("peer connection closed mid-call")
			s.endCallLoop(core.EndReasonRemote, false, false)
		}
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
