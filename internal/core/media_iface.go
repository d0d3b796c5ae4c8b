package core

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/meetloop/callcore/internal/domain"
)

// Contract errors a MediaPipeline implementation reports. Implementations
// wrap these so callers can errors.Is across adapters.
var (
	ErrPermissionDenied       = errors.New("camera/microphone permission denied")
	ErrMediaAcquisitionFailed = errors.New("media acquisition failed")
	ErrNegotiationFailed      = errors.New("media negotiation failed")
)

// TrackKind selects audio or video on SetTrackEnabled.
type TrackKind int

const (
	TrackAudio TrackKind = iota
	TrackVideo
)

func (k TrackKind) String() string {
	if k == TrackVideo {
		return "video"
	}
	return "audio"
}

// MediaConstraints describes what AcquireLocal should open.
type MediaConstraints struct {
	Video       bool
	Audio       bool
	FacingFront bool
}

// MediaPipeline owns local capture and the peer connection. The session
// machine is its only caller for enabled/disabled mutations, which keeps a
// single source of truth for what the UI renders.
type MediaPipeline interface {
	// AcquireLocal opens camera/mic per constraints and returns the local
	// stream handle. Blocking; callers run it off the session loop.
	AcquireLocal(ctx context.Context, c MediaConstraints) (domain.StreamHandle, error)
	// ReleaseLocal forcibly stops every local track. Idempotent; performs a
	// delayed second stop for platforms where the first stop does not take
	// effect synchronously.
	ReleaseLocal()
	// FlipCamera re-acquires video with the opposite facing mode and returns
	// the replacement handle.
	FlipCamera(ctx context.Context) (domain.StreamHandle, error)
	// SetTrackEnabled pauses or resumes sending the given local track kind.
	// Toggling video may renegotiate.
	SetTrackEnabled(ctx context.Context, kind TrackKind, enabled bool) error
	// SetRemoteAudioEnabled mutes the remote audio render path locally only.
	SetRemoteAudioEnabled(enabled bool)

	// Connect builds the peer connection toward the matched peer. The
	// initiator side produces an offer through OnOffer.
	Connect(ctx context.Context, initiator bool) error
	HandleOffer(sdp webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	HandleAnswer(sdp webrtc.SessionDescription) error
	AddRemoteCandidate(c webrtc.ICECandidateInit) error
	// CloseConnection tears down the peer connection but keeps local capture.
	CloseConnection()

	// OnRemoteStream sets the callback invoked whenever the remote stream or
	// its track set changes. The same stream instance may be reported again
	// after renegotiation; the session machine reconciles identity.
	OnRemoteStream(fn func(domain.StreamHandle))
	// OnOffer sets the callback for locally created offers (initial and
	// renegotiation).
	OnOffer(fn func(webrtc.SessionDescription))
	// OnLocalCandidate sets the callback for newly gathered ICE candidates.
	OnLocalCandidate(fn func(webrtc.ICECandidateInit))
	// OnConnectionClosed sets the callback for peer connection teardown.
	OnConnectionClosed(fn func())
}
