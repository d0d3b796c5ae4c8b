package core

import "github.com/meetloop/callcore/internal/domain"

// Event is the closed set of notifications the session machine emits to the
// UI layer. Exactly one concrete type per logical change; delivery is
// in-order and at most once per change.
type Event interface{ event() }

// LocalStreamChanged and RemoteStreamChanged carry the current handle plus a
// view key. The UI re-binds its media surface whenever the key changes, which
// forces a re-render without treating the stream as a new peer.
type LocalStreamChanged struct {
	Handle  domain.StreamHandle
	ViewKey string
}

type RemoteStreamChanged struct {
	Handle  domain.StreamHandle
	ViewKey string
}

// PartnerChanged reports the current partner; zero values mean no partner.
type PartnerChanged struct {
	ConnectionID domain.ConnectionID
	UserID       domain.UserID
}

type RoomChanged struct {
	RoomID domain.RoomID
}

type CallIDChanged struct {
	CallID domain.CallID
}

type MicStateChanged struct {
	On bool
}

type CamStateChanged struct {
	On bool
}

type RemoteCamStateChanged struct {
	On bool
}

type RemoteMuteStateChanged struct {
	Muted bool
}

type MicLevelChanged struct {
	Level float64
	Bands []float64
}

// Searching is emitted once per search cycle in random mode.
type Searching struct{}

type MatchFound struct {
	PartnerConnectionID domain.ConnectionID
	PartnerUserID       domain.UserID
	RoomID              domain.RoomID
}

type CallAnswered struct {
	CallID domain.CallID
}

type CallDeclined struct {
	CallID domain.CallID
}

// EndReason distinguishes why a call ended.
type EndReason string

const (
	EndReasonLocal         EndReason = "local"
	EndReasonRemote        EndReason = "remote"
	EndReasonPartnerLeft   EndReason = "partner-left"
	EndReasonDeclined      EndReason = "declined"
	EndReasonTransportLost EndReason = "transport-lost"
	EndReasonBackground    EndReason = "background"
)

// CallEnded is terminal for its call: no further media events follow it.
type CallEnded struct {
	Reason EndReason
}

type Disconnected struct {
	Err error
}

func (LocalStreamChanged) event()     {}
func (RemoteStreamChanged) event()    {}
func (PartnerChanged) event()         {}
func (RoomChanged) event()            {}
func (CallIDChanged) event()          {}
func (MicStateChanged) event()        {}
func (CamStateChanged) event()        {}
func (RemoteCamStateChanged) event()  {}
func (RemoteMuteStateChanged) event() {}
func (MicLevelChanged) event()        {}
func (Searching) event()              {}
func (MatchFound) event()             {}
func (CallAnswered) event()           {}
func (CallDeclined) event()           {}
func (CallEnded) event()              {}
func (Disconnected) event()           {}
