// Package domain contains entity without logic, just meta-data
package domain

type (
	// UserID is a stable account identity.
	UserID string
	// ConnectionID is the transient per-connection identity assigned by the
	// signaling backend; it changes on every reconnect.
	ConnectionID string
	// CallID identifies a direct friend-to-friend call. Empty for random matches.
	CallID string
	// RoomID identifies the media room both peers join.
	RoomID string
)

// Mode tells how the current call came to be.
type Mode int

const (
	ModeNone Mode = iota
	ModeRandom
	ModeDirect
)

func (m Mode) String() string {
	switch m {
	case ModeRandom:
		return "random"
	case ModeDirect:
		return "direct"
	default:
		return "none"
	}
}

// Direction tells which side initiated the call.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionInitiator
	DirectionReceiver
)

func (d Direction) String() string {
	switch d {
	case DirectionInitiator:
		return "initiator"
	case DirectionReceiver:
		return "receiver"
	default:
		return "none"
	}
}

// Call is the single active or pending call owned by the session machine.
// The machine holds at most one non-terminal Call at a time; all fields are
// cleared together on teardown.
type Call struct {
	CallID              CallID
	RoomID              RoomID
	PartnerConnectionID ConnectionID
	PartnerUserID       UserID
	Mode                Mode
	Direction           Direction
}

// NewRandomCall avoids raw literals in the session machine and keeps
// construction obvious.
func NewRandomCall(partnerConn ConnectionID, partnerUser UserID, room RoomID) *Call {
	return &Call{
		RoomID:              room,
		PartnerConnectionID: partnerConn,
		PartnerUserID:       partnerUser,
		Mode:                ModeRandom,
		Direction:           DirectionNone,
	}
}

// NewDirectCall builds a direct call shell; RoomID is filled in once the
// backend acknowledges the call.
func NewDirectCall(id CallID, partnerUser UserID, dir Direction) *Call {
	return &Call{
		CallID:        id,
		PartnerUserID: partnerUser,
		Mode:          ModeDirect,
		Direction:     dir,
	}
}
