package registry

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetloop/callcore/internal/config"
	"github.com/meetloop/callcore/internal/core"
	"github.com/meetloop/callcore/internal/domain"
	"github.com/meetloop/callcore/internal/session"
)

type nopSignal struct{}

func (nopSignal) Attach(func(core.Inbound))                 {}
func (nopSignal) SendPresence(string) error                 { return nil }
func (nopSignal) SendCameraState(bool) error                { return nil }
func (nopSignal) SendPiPState(bool) error                   { return nil }
func (nopSignal) SendMatchRequest() error                   { return nil }
func (nopSignal) SendMatchStop() error                      { return nil }
func (nopSignal) SendNext() error                           { return nil }
func (nopSignal) SendCallRequest(domain.UserID) error       { return nil }
func (nopSignal) SendCallAccept(domain.CallID) error        { return nil }
func (nopSignal) SendCallDecline(domain.CallID) error       { return nil }
func (nopSignal) SendCallEnd() error                        { return nil }
func (nopSignal) SendOffer(webrtc.SessionDescription) error { return nil }
func (nopSignal) SendAnswer(webrtc.SessionDescription) error { return nil }
func (nopSignal) SendCandidate(webrtc.ICECandidateInit) error { return nil }
func (nopSignal) Close()                                    {}

type nopMedia struct{}

func (nopMedia) AcquireLocal(context.Context, core.MediaConstraints) (domain.StreamHandle, error) {
	return domain.StreamHandle{StreamID: "s", TrackState: domain.TrackLive}, nil
}
func (nopMedia) ReleaseLocal()                                {}
func (nopMedia) FlipCamera(context.Context) (domain.StreamHandle, error) {
	return domain.StreamHandle{}, nil
}
func (nopMedia) SetTrackEnabled(context.Context, core.TrackKind, bool) error { return nil }
func (nopMedia) SetRemoteAudioEnabled(bool)                                  {}
func (nopMedia) Connect(context.Context, bool) error                         { return nil }
func (nopMedia) HandleOffer(webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	return nil, nil
}
func (nopMedia) HandleAnswer(webrtc.SessionDescription) error     { return nil }
func (nopMedia) AddRemoteCandidate(webrtc.ICECandidateInit) error { return nil }
func (nopMedia) CloseConnection()                                 {}
func (nopMedia) OnRemoteStream(func(domain.StreamHandle))         {}
func (nopMedia) OnOffer(func(webrtc.SessionDescription))          {}
func (nopMedia) OnLocalCandidate(func(webrtc.ICECandidateInit))   {}
func (nopMedia) OnConnectionClosed(func())                        {}

func testDeps() session.Deps {
	return session.Deps{Signal: nopSignal{}, Media: nopMedia{}}
}

func TestCreateAndGet(t *testing.T) {
	r := New()
	h, s := r.Create(config.Default(), testDeps())
	require.NotNil(t, s)
	defer r.Destroy(h)

	got, ok := r.Get(h)
	assert.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())
}

func TestDestroyForgetsSession(t *testing.T) {
	r := New()
	h, _ := r.Create(config.Default(), testDeps())

	r.Destroy(h)
	_, ok := r.Get(h)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestDestroyTwiceIsSafe(t *testing.T) {
	r := New()
	h, _ := r.Create(config.Default(), testDeps())

	r.Destroy(h)
	r.Destroy(h)
	assert.Equal(t, 0, r.Len())
}

func TestHandlesAreUnique(t *testing.T) {
	r := New()
	h1, _ := r.Create(config.Default(), testDeps())
	h2, _ := r.Create(config.Default(), testDeps())
	defer r.Destroy(h1)
	defer r.Destroy(h2)

	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, r.Len())
}
