package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/meetloop/callcore/internal/config"
	"github.com/meetloop/callcore/internal/core"
	"github.com/meetloop/callcore/internal/domain"
)

// fakeClock is a manually advanced clock so cooldowns and protection windows
// are tested without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSignal records outbound commands and lets tests push inbound signals
// through the attached handler.
type fakeSignal struct {
	mu      sync.Mutex
	handler func(core.Inbound)
	sent    []string
}

func newFakeSignal() *fakeSignal { return &fakeSignal{} }

func (f *fakeSignal) Attach(h func(core.Inbound)) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeSignal) push(in core.Inbound) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(in)
	}
}

func (f *fakeSignal) record(what string) error {
	f.mu.Lock()
	f.sent = append(f.sent, what)
	f.mu.Unlock()
	return nil
}

func (f *fakeSignal) sentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSignal) countSent(what string) int {
	n := 0
	for _, s := range f.sentCommands() {
		if s == what {
			n++
		}
	}
	return n
}

func (f *fakeSignal) SendPresence(status string) error { return f.record("presence:" + status) }

func (f *fakeSignal) SendCameraState(enabled bool) error {
	if enabled {
		return f.record("camera-state:on")
	}
	return f.record("camera-state:off")
}

func (f *fakeSignal) SendPiPState(bool) error                     { return f.record("pip-state") }
func (f *fakeSignal) SendMatchRequest() error                     { return f.record("match-request") }
func (f *fakeSignal) SendMatchStop() error                        { return f.record("match-stop") }
func (f *fakeSignal) SendNext() error                             { return f.record("next") }
func (f *fakeSignal) SendCallRequest(domain.UserID) error         { return f.record("call-request") }
func (f *fakeSignal) SendCallAccept(domain.CallID) error          { return f.record("call-accept") }
func (f *fakeSignal) SendCallDecline(domain.CallID) error         { return f.record("call-decline") }
func (f *fakeSignal) SendCallEnd() error                          { return f.record("call-end") }
func (f *fakeSignal) SendOffer(webrtc.SessionDescription) error   { return f.record("offer") }
func (f *fakeSignal) SendAnswer(webrtc.SessionDescription) error  { return f.record("answer") }
func (f *fakeSignal) SendCandidate(webrtc.ICECandidateInit) error { return f.record("candidate") }
func (f *fakeSignal) Close()                                      {}

// fakeMedia is a scriptable media pipeline.
type fakeMedia struct {
	mu sync.Mutex

	acquireErr error
	acquired   domain.StreamHandle
	flipHandle domain.StreamHandle
	flipErr    error
	trackErr   error
	connectErr error

	releases     int
	closes       int
	connects     []bool
	trackToggles []string

	onRemoteStream func(domain.StreamHandle)
	onOffer        func(webrtc.SessionDescription)
	onCandidate    func(webrtc.ICECandidateInit)
	onClosed       func()

	connected chan bool
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		acquired: domain.StreamHandle{
			StreamID:     "local-1",
			Ownership:    domain.OwnershipLocal,
			VideoEnabled: true,
			AudioEnabled: true,
			TrackState:   domain.TrackLive,
		},
		flipHandle: domain.StreamHandle{
			StreamID:     "local-2",
			Ownership:    domain.OwnershipLocal,
			VideoEnabled: true,
			AudioEnabled: true,
			TrackState:   domain.TrackLive,
		},
		connected: make(chan bool, 4),
	}
}

func (m *fakeMedia) AcquireLocal(_ context.Context, _ core.MediaConstraints) (domain.StreamHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquireErr != nil {
		return domain.StreamHandle{}, m.acquireErr
	}
	return m.acquired, nil
}

func (m *fakeMedia) ReleaseLocal() {
	m.mu.Lock()
	m.releases++
	m.mu.Unlock()
}

func (m *fakeMedia) releaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

func (m *fakeMedia) FlipCamera(context.Context) (domain.StreamHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flipHandle, m.flipErr
}

func (m *fakeMedia) SetTrackEnabled(_ context.Context, kind core.TrackKind, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trackErr != nil {
		return m.trackErr
	}
	label := "audio"
	if kind == core.TrackVideo {
		label = "video"
	}
	if enabled {
		label += ":on"
	} else {
		label += ":off"
	}
	m.trackToggles = append(m.trackToggles, label)
	return nil
}

func (m *fakeMedia) SetRemoteAudioEnabled(bool) {}

func (m *fakeMedia) Connect(_ context.Context, initiator bool) error {
	m.mu.Lock()
	err := m.connectErr
	if err == nil {
		m.connects = append(m.connects, initiator)
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.connected <- initiator
	return nil
}

func (m *fakeMedia) waitConnect(t *testing.T) bool {
	t.Helper()
	select {
	case initiator := <-m.connected:
		return initiator
	case <-time.After(2 * time.Second):
		t.Fatal("media connect was never requested")
		return false
	}
}

func (m *fakeMedia) HandleOffer(webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}, nil
}
func (m *fakeMedia) HandleAnswer(webrtc.SessionDescription) error     { return nil }
func (m *fakeMedia) AddRemoteCandidate(webrtc.ICECandidateInit) error { return nil }

func (m *fakeMedia) CloseConnection() {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
}

func (m *fakeMedia) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func (m *fakeMedia) OnRemoteStream(fn func(domain.StreamHandle)) { m.onRemoteStream = fn }

func (m *fakeMedia) OnOffer(fn func(webrtc.SessionDescription)) { m.onOffer = fn }

func (m *fakeMedia) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) { m.onCandidate = fn }

func (m *fakeMedia) OnConnectionClosed(fn func()) { m.onClosed = fn }

func (m *fakeMedia) emitRemote(h domain.StreamHandle) { m.onRemoteStream(h) }

// recorder collects published events; handlers run on the session loop.
type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) record(e core.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) clear() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func (r *recorder) count(match func(core.Event) bool) int {
	n := 0
	for _, e := range r.all() {
		if match(e) {
			n++
		}
	}
	return n
}

func offerSDP() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
}

func remoteHandle(id string) domain.StreamHandle {
	return domain.StreamHandle{
		StreamID:     id,
		Ownership:    domain.OwnershipRemote,
		VideoEnabled: true,
		AudioEnabled: true,
		TrackState:   domain.TrackLive,
	}
}

type harness struct {
	sess   *Session
	clock  *fakeClock
	signal *fakeSignal
	media  *fakeMedia
	events *recorder
	cfg    *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:  newFakeClock(),
		signal: newFakeSignal(),
		media:  newFakeMedia(),
		events: &recorder{},
		cfg:    config.Default(),
	}
	h.sess = New(h.cfg, Deps{Clock: h.clock, Signal: h.signal, Media: h.media})
	h.sess.Subscribe(h.events.record)
	t.Cleanup(h.sess.Close)
	return h
}

// flush waits for every op queued so far to run on the loop.
func (h *harness) flush() { h.sess.Snapshot() }

// matched drives the session into an active random match.
func (h *harness) matched(t *testing.T) {
	t.Helper()
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.signal.push(core.InWelcome{ConnectionID: "self-conn"})
	h.signal.push(core.InMatchFound{
		PartnerConnectionID: "partner-conn",
		PartnerUserID:       "partner-user",
		RoomID:              "room-1",
		Polite:              false,
	})
	h.flush()
	h.media.waitConnect(t)
}

// active drives the session all the way to an active call with remote media.
func (h *harness) active(t *testing.T) {
	t.Helper()
	h.matched(t)
	h.media.emitRemote(remoteHandle("remote-1"))
	h.flush()
}
