package domain

import "time"

// Ownership tags a stream handle as local capture or remote render.
type Ownership int

const (
	OwnershipLocal Ownership = iota
	OwnershipRemote
)

func (o Ownership) String() string {
	if o == OwnershipRemote {
		return "remote"
	}
	return "local"
}

// TrackReadyState mirrors the underlying media track lifecycle.
type TrackReadyState int

const (
	TrackNew TrackReadyState = iota
	TrackLive
	TrackEnded
)

func (t TrackReadyState) String() string {
	switch t {
	case TrackLive:
		return "live"
	case TrackEnded:
		return "ended"
	default:
		return "new"
	}
}

// StreamHandle is an opaque, ownership-tagged reference to an audio/video
// stream. The session machine keeps at most one local and one remote handle
// per active call. A zero StreamID means "no stream".
type StreamHandle struct {
	StreamID      string
	Ownership     Ownership
	VideoEnabled  bool
	AudioEnabled  bool
	TrackState    TrackReadyState
	MutedByRemote bool
	ReceivedAt    time.Time
}

// IsZero reports whether the handle references no stream at all.
func (h StreamHandle) IsZero() bool { return h.StreamID == "" }

// VideoLive reports whether the handle carries renderable video right now.
func (h StreamHandle) VideoLive() bool {
	return !h.IsZero() && h.VideoEnabled && h.TrackState == TrackLive
}
