package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/meetloop/callcore/internal/domain"
)

// Inbound is a typed message pushed by the signaling backend. The adapter
// translates wire envelopes into these; it carries no business logic beyond
// translation.
type Inbound interface{ inbound() }

// InWelcome assigns this client its transient connection identity.
type InWelcome struct {
	ConnectionID domain.ConnectionID
}

// InMatchFound pairs this client with a random peer. RoomToken is the
// backend-signed room access token; the client only reads its routing claims.
type InMatchFound struct {
	PartnerConnectionID domain.ConnectionID
	PartnerUserID       domain.UserID
	RoomID              domain.RoomID
	RoomToken           string
	// Polite side answers instead of offering when both peers negotiate at once.
	Polite bool
}

// InCallIncoming announces a direct call ringing on this device.
type InCallIncoming struct {
	CallID     domain.CallID
	FromUserID domain.UserID
}

// InCallAccepted confirms the remote side picked up a direct call.
type InCallAccepted struct {
	CallID domain.CallID
	RoomID domain.RoomID
}

// InCallDeclined means the remote side rejected the direct call.
type InCallDeclined struct {
	CallID domain.CallID
}

// InCallEnded means the remote side hung up or the backend tore the call down.
type InCallEnded struct {
	Reason string
}

// InCameraState relays a camera on/off announcement. From lets the session
// distinguish the partner's camera from a stale echo of its own.
type InCameraState struct {
	From    domain.ConnectionID
	Enabled bool
}

// InRemoteMute relays the partner's microphone mute state.
type InRemoteMute struct {
	Muted bool
}

// InPiPState relays the partner's picture-in-picture state.
type InPiPState struct {
	InPiP bool
}

// InMicLevel carries the partner's mic level and visualization bands, 0..1.
type InMicLevel struct {
	Level float64
	Bands []float64
}

// InOffer, InAnswer and InCandidate carry media negotiation between peers.
type InOffer struct {
	SDP webrtc.SessionDescription
}

type InAnswer struct {
	SDP webrtc.SessionDescription
}

type InCandidate struct {
	Candidate webrtc.ICECandidateInit
}

// InDisconnected is terminal for the current call: the transport is gone and
// the external socket layer owns any reconnect.
type InDisconnected struct {
	Err error
}

func (InWelcome) inbound()      {}
func (InMatchFound) inbound()   {}
func (InCallIncoming) inbound() {}
func (InCallAccepted) inbound() {}
func (InCallDeclined) inbound() {}
func (InCallEnded) inbound()    {}
func (InCameraState) inbound()  {}
func (InRemoteMute) inbound()   {}
func (InPiPState) inbound()     {}
func (InMicLevel) inbound()     {}
func (InOffer) inbound()        {}
func (InAnswer) inbound()       {}
func (InCandidate) inbound()    {}
func (InDisconnected) inbound() {}

// SignalChannel abstracts the bidirectional signaling transport.
// Owned by the adapter; the adapter must Close() it.
// Sends never block the caller; each inbound message is delivered to exactly
// the one handler set via Attach.
type SignalChannel interface {
	// Attach sets the single inbound handler. Must be called before any
	// command that can race against backend pushes (accept in particular).
	Attach(handler func(Inbound))

	SendPresence(status string) error
	SendCameraState(enabled bool) error
	SendPiPState(inPiP bool) error

	SendMatchRequest() error
	SendMatchStop() error
	SendNext() error

	SendCallRequest(to domain.UserID) error
	SendCallAccept(id domain.CallID) error
	SendCallDecline(id domain.CallID) error
	SendCallEnd() error

	SendOffer(sdp webrtc.SessionDescription) error
	SendAnswer(sdp webrtc.SessionDescription) error
	SendCandidate(c webrtc.ICECandidateInit) error

	Close()
}
