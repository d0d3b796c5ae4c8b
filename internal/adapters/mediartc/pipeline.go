// Package mediartc implements the media pipeline on pion/webrtc and
// pion/mediadevices: local camera/mic capture, the peer connection toward the
// matched peer, and remote track bookkeeping.
package mediartc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/meetloop/callcore/internal/core"
	"github.com/meetloop/callcore/internal/domain"
)

// Config carries the transport knobs the pipeline needs.
type Config struct {
	ICEServers      []string
	StopVerifyDelay time.Duration
}

// Pipeline implements core.MediaPipeline. One instance serves one session.
type Pipeline struct {
	cfg Config

	mu            sync.Mutex
	stream        mediadevices.MediaStream
	tracks        []mediadevices.Track
	streamID      string
	facingFront   bool
	videoCaptured bool
	audioCaptured bool

	conn    *peerConn
	senders map[core.TrackKind]*webrtc.RTPSender
	byKind  map[core.TrackKind]mediadevices.Track

	remoteID      string
	remoteVideo   bool
	remoteAudio   bool
	remoteAudioOn bool

	onRemoteStream func(domain.StreamHandle)
	onOffer        func(webrtc.SessionDescription)
	onCandidate    func(webrtc.ICECandidateInit)
	onConnClosed   func()
}

func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		cfg:           cfg,
		facingFront:   true,
		senders:       make(map[core.TrackKind]*webrtc.RTPSender),
		byKind:        make(map[core.TrackKind]mediadevices.Track),
		remoteAudioOn: true,
	}
}

func (p *Pipeline) OnRemoteStream(fn func(domain.StreamHandle)) { p.onRemoteStream = fn }

func (p *Pipeline) OnOffer(fn func(webrtc.SessionDescription)) { p.onOffer = fn }

func (p *Pipeline) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) { p.onCandidate = fn }

func (p *Pipeline) OnConnectionClosed(fn func()) { p.onConnClosed = fn }

func codecSelector() (*mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}
	return mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	), nil
}

// AcquireLocal opens camera and microphone. GetUserMedia fails as a unit if
// either track can't be opened, so attempts degrade: video+audio, video-only,
// audio-only. All three failing is terminal for the command.
func (p *Pipeline) AcquireLocal(ctx context.Context, c core.MediaConstraints) (domain.StreamHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		return p.handleLocked(), nil
	}
	p.facingFront = c.FacingFront
	if err := p.acquireLocked(c.Video, c.Audio); err != nil {
		return domain.StreamHandle{}, err
	}
	return p.handleLocked(), nil
}

func (p *Pipeline) acquireLocked(wantVideo, wantAudio bool) error {
	selector, err := codecSelector()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrMediaAcquisitionFailed, err)
	}

	type attempt struct {
		video, audio bool
		label        string
	}
	attempts := []attempt{}
	if wantVideo && wantAudio {
		attempts = append(attempts, attempt{true, true, "video+audio"})
	}
	if wantVideo {
		attempts = append(attempts, attempt{true, false, "video-only"})
	}
	if wantAudio {
		attempts = append(attempts, attempt{false, true, "audio-only"})
	}

	var lastErr error
	for _, a := range attempts {
		constraints := mediadevices.MediaStreamConstraints{Codec: selector}
		if a.video {
			constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
				// Raw frame formats only; MJPEG camera nodes can poison the
				// VP8 encoder and break SDP negotiation entirely.
				c.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				c.Width = prop.IntRanged{Max: 640}
				c.Height = prop.IntRanged{Max: 480}
			}
		}
		if a.audio {
			constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Warn().Err(err).Str("module", "mediartc").Str("attempt", a.label).Msg("GetUserMedia failed")
			lastErr = err
			continue
		}

		p.stream = stream
		p.tracks = stream.GetTracks()
		p.streamID = uuid.NewString()
		p.videoCaptured = false
		p.audioCaptured = false
		for _, t := range p.tracks {
			t.OnEnded(func(err error) {
				if err != nil {
					log.Warn().Err(err).Str("module", "mediartc").Msg("local track ended")
				}
			})
			switch t.Kind() {
			case webrtc.RTPCodecTypeVideo:
				p.videoCaptured = true
				p.byKind[core.TrackVideo] = t
			case webrtc.RTPCodecTypeAudio:
				p.audioCaptured = true
				p.byKind[core.TrackAudio] = t
			}
		}
		log.Info().Str("module", "mediartc").Str("attempt", a.label).Int("tracks", len(p.tracks)).Msg("local media captured")
		return nil
	}
	return fmt.Errorf("%w: %v", core.ErrMediaAcquisitionFailed, lastErr)
}

func (p *Pipeline) handleLocked() domain.StreamHandle {
	return domain.StreamHandle{
		StreamID:     p.streamID,
		Ownership:    domain.OwnershipLocal,
		VideoEnabled: p.videoCaptured,
		AudioEnabled: p.audioCaptured,
		TrackState:   domain.TrackLive,
	}
}

// ReleaseLocal stops every local track, then verifies after a short delay and
// stops again: on some platforms the first stop does not take effect
// synchronously and the camera LED stays on.
func (p *Pipeline) ReleaseLocal() {
	p.mu.Lock()
	if p.stream == nil {
		p.mu.Unlock()
		return
	}
	tracks := p.tracks
	p.stream = nil
	p.tracks = nil
	p.streamID = ""
	p.byKind = make(map[core.TrackKind]mediadevices.Track)
	p.mu.Unlock()

	stopAll := func() {
		for _, t := range tracks {
			if err := t.Close(); err != nil {
				log.Debug().Err(err).Str("module", "mediartc").Msg("track stop")
			}
		}
	}
	stopAll()
	delay := p.cfg.StopVerifyDelay
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	time.AfterFunc(delay, stopAll)
	log.Info().Str("module", "mediartc").Int("tracks", len(tracks)).Msg("local media released")
}

// FlipCamera re-acquires video with the opposite facing and swaps it into the
// running connection.
func (p *Pipeline) FlipCamera(ctx context.Context) (domain.StreamHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return domain.StreamHandle{}, core.ErrMediaAcquisitionFailed
	}
	hadAudio := p.audioCaptured
	for _, t := range p.tracks {
		_ = t.Close()
	}
	p.stream = nil
	p.tracks = nil
	p.byKind = make(map[core.TrackKind]mediadevices.Track)
	p.facingFront = !p.facingFront

	if err := p.acquireLocked(true, hadAudio); err != nil {
		return domain.StreamHandle{}, err
	}
	if p.conn != nil {
		if sender, ok := p.senders[core.TrackVideo]; ok {
			if t, ok := p.byKind[core.TrackVideo]; ok {
				if err := sender.ReplaceTrack(t); err != nil {
					return domain.StreamHandle{}, fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
				}
			}
		}
	}
	return p.handleLocked(), nil
}

// SetTrackEnabled pauses/resumes sending by swapping the sender's track. The
// capture itself keeps running so re-enable is instant.
func (p *Pipeline) SetTrackEnabled(ctx context.Context, kind core.TrackKind, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sender, ok := p.senders[kind]
	if !ok {
		// Not connected yet; nothing to pause on the wire.
		return nil
	}
	if !enabled {
		if err := sender.ReplaceTrack(nil); err != nil {
			return fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
		}
		return nil
	}
	t, ok := p.byKind[kind]
	if !ok {
		return core.ErrMediaAcquisitionFailed
	}
	if err := sender.ReplaceTrack(t); err != nil {
		return fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
	}
	return nil
}

// SetRemoteAudioEnabled mutes the remote render path locally. The render
// surface reads this; the peer never learns about it.
func (p *Pipeline) SetRemoteAudioEnabled(enabled bool) {
	p.mu.Lock()
	p.remoteAudioOn = enabled
	p.mu.Unlock()
	log.Debug().Str("module", "mediartc").Bool("enabled", enabled).Msg("remote audio render")
}

// RemoteAudioEnabled reports the local render-mute state.
func (p *Pipeline) RemoteAudioEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteAudioOn
}

func (p *Pipeline) buildAPI() (*webrtc.API, error) {
	selector, err := codecSelector()
	if err != nil {
		return nil, err
	}
	mediaEngine := &webrtc.MediaEngine{}
	selector.Populate(mediaEngine)

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, err
	}

	// Generous ICE timeouts: mobile relay paths see short outages during
	// re-keying and failover, and the 5s default drops calls the user would
	// never have noticed freezing.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

// Connect builds the peer connection and, for the initiator, emits the offer
// through OnOffer.
func (p *Pipeline) Connect(ctx context.Context, initiator bool) error {
	p.mu.Lock()
	if p.conn != nil {
		p.mu.Unlock()
		return nil
	}
	conn, err := p.newConnLocked(ctx)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.conn = conn
	p.mu.Unlock()

	if initiator {
		offer, err := conn.createAndSetOffer()
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
		}
		if p.onOffer != nil {
			p.onOffer(*offer)
		}
	}
	return nil
}

func (p *Pipeline) newConnLocked(ctx context.Context) (*peerConn, error) {
	api, err := p.buildAPI()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
	}
	servers := make([]webrtc.ICEServer, 0, len(p.cfg.ICEServers))
	for _, u := range p.cfg.ICEServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	conn, err := newPeerConn(api, webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
	}

	conn.onICE = func(c webrtc.ICECandidateInit) {
		if p.onCandidate != nil {
			p.onCandidate(c)
		}
	}
	conn.onClosed = func() {
		if p.onConnClosed != nil {
			p.onConnClosed()
		}
	}
	conn.onTrack = p.handleRemoteTrack
	conn.start(ctx)

	for kind, t := range p.byKind {
		sender, err := conn.addTrack(t)
		if err != nil {
			conn.close()
			return nil, fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
		}
		p.senders[kind] = sender
	}
	return conn, nil
}

// handleRemoteTrack folds incoming tracks into one remote stream handle. The
// same stream reappears across renegotiation; the session machine owns
// identity reconciliation, this just reports what arrived.
func (p *Pipeline) handleRemoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	p.mu.Lock()
	p.remoteID = track.StreamID()
	switch track.Kind() {
	case webrtc.RTPCodecTypeVideo:
		p.remoteVideo = true
	case webrtc.RTPCodecTypeAudio:
		p.remoteAudio = true
	}
	h := domain.StreamHandle{
		StreamID:     p.remoteID,
		Ownership:    domain.OwnershipRemote,
		VideoEnabled: p.remoteVideo,
		AudioEnabled: p.remoteAudio,
		TrackState:   domain.TrackLive,
	}
	fn := p.onRemoteStream
	p.mu.Unlock()
	if fn != nil {
		fn(h)
	}
}

// HandleOffer answers a remote offer, building the connection first when the
// offer arrives before Connect (direct-call receiver path).
func (p *Pipeline) HandleOffer(sdp webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	p.mu.Lock()
	if p.conn == nil {
		conn, err := p.newConnLocked(context.Background())
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		p.conn = conn
	}
	conn := p.conn
	p.mu.Unlock()

	answer, err := conn.applyOfferAndCreateAnswer(sdp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
	}
	return answer, nil
}

func (p *Pipeline) HandleAnswer(sdp webrtc.SessionDescription) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return core.ErrNegotiationFailed
	}
	if err := conn.applyAnswer(sdp); err != nil {
		return fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
	}
	return nil
}

func (p *Pipeline) AddRemoteCandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return core.ErrNegotiationFailed
	}
	return conn.addICECandidate(c)
}

// CloseConnection drops the peer connection but keeps capture alive so a
// following match starts instantly.
func (p *Pipeline) CloseConnection() {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.senders = make(map[core.TrackKind]*webrtc.RTPSender)
	p.remoteID = ""
	p.remoteVideo = false
	p.remoteAudio = false
	p.mu.Unlock()
	if conn != nil {
		conn.close()
	}
}
