package session

// State is the call lifecycle position. Inactive ("call gone, screen still
// mounted") is an overlay flag on the machine, not a State, because it can
// coexist with Idle after a forced teardown.
type State int

const (
	StateIdle State = iota
	StateSearching
	StateMatched
	StateNegotiating
	StateActive
	StateEnding
	// Direct-call variants.
	StateDialing
	StateRingingLocal  // incoming call ringing on this device
	StateRingingRemote // outgoing call ringing on the peer's device
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateMatched:
		return "matched"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateDialing:
		return "dialing"
	case StateRingingLocal:
		return "ringing-local"
	case StateRingingRemote:
		return "ringing-remote"
	default:
		return "unknown"
	}
}

// inCall reports whether a Call exists that EndCall must tear down.
func (s State) inCall() bool {
	switch s {
	case StateMatched, StateNegotiating, StateActive, StateDialing, StateRingingRemote:
		return true
	}
	return false
}

// canNext reports whether Next is legal: random mode while searching or talking.
func (s State) canNext() bool {
	return s == StateSearching || s == StateActive || s == StateMatched || s == StateNegotiating
}
