// Package session implements the call/session state machine: the single
// authority over the lifecycle of the current call or match. It serializes
// commands and signaling callbacks onto one loop goroutine and emits a typed
// event stream through the bus.
package session

import (
	"context"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/meetloop/callcore/internal/bus"
	"github.com/meetloop/callcore/internal/config"
	"github.com/meetloop/callcore/internal/core"
	"github.com/meetloop/callcore/internal/domain"
)

const opsBuffer = 64

// streamView pairs a stream handle with the opaque view key the UI uses to
// force a media surface re-bind.
type streamView struct {
	handle  domain.StreamHandle
	viewKey string
}

// Deps are the collaborators a Session needs. Everything is injected; the
// machine never reaches for ambient singletons.
type Deps struct {
	Clock  core.Clock
	Signal core.SignalChannel
	Media  core.MediaPipeline
}

// Session owns one active call/room at a time. All mutable fields below the
// ops channel are confined to the loop goroutine.
type Session struct {
	cfg    *config.Config
	clock  core.Clock
	signal core.SignalChannel
	media  core.MediaPipeline
	bus    *bus.Bus

	ctx       context.Context
	cancel    context.CancelFunc
	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once

	// loop-confined state
	state           State
	flags           domain.SessionFlags
	pip             domain.PiPState
	selfConn        domain.ConnectionID
	call            *domain.Call
	pendingIncoming *domain.Call
	gen             uint64
	local           streamView
	remote          streamView
	remoteAudioOn   bool
	inactivePending bool
	guard           *opGuard
	camGuard        *camGuard
}

func New(cfg *config.Config, d Deps) *Session {
	if d.Clock == nil {
		d.Clock = core.SystemClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:    cfg,
		clock:  d.Clock,
		signal: d.Signal,
		media:  d.Media,
		bus:    bus.New(),
		ctx:    ctx,
		cancel: cancel,
		ops:    make(chan func(), opsBuffer),
		done:   make(chan struct{}),
		state:  StateIdle,
		flags:  domain.NewSessionFlags(),
		guard: newOpGuard(d.Clock, map[opCategory]time.Duration{
			opStopping:    cfg.MicToggleCooldown,
			opSearching:   cfg.NextCooldown,
			opMicToggle:   cfg.MicToggleCooldown,
			opCamToggle:   cfg.CamToggleCooldown,
			opRemoteAudio: cfg.RemoteAudioCooldown,
		}),
		camGuard:      newCamGuard(d.Clock, cfg.CamProtectWindow),
		remoteAudioOn: true,
	}

	// Handlers must be attached before any command can race against backend
	// pushes; the accept acknowledgment in particular is easy to lose.
	s.signal.Attach(s.onInbound)
	s.media.OnRemoteStream(s.onRemoteStream)
	s.media.OnOffer(s.onLocalOffer)
	s.media.OnLocalCandidate(s.onLocalCandidate)
	s.media.OnConnectionClosed(s.onConnectionClosed)

	go s.run()
	return s
}

func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.ops:
			fn()
		}
	}
}

// post schedules fn onto the loop. Drops silently once the session is closed.
func (s *Session) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.done:
	}
}

// exec runs fn on the loop and waits for its result.
func (s *Session) exec(fn func() error) error {
	res := make(chan error, 1)
	s.post(func() { res <- fn() })
	select {
	case err := <-res:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// Subscribe registers an observer for session events. Handlers run on the
// session loop and must not block.
func (s *Session) Subscribe(fn func(core.Event)) int { return s.bus.Subscribe(fn) }

func (s *Session) Unsubscribe(id int) { s.bus.Unsubscribe(id) }

// Snapshot is a consistent copy of the UI-visible session state, for initial
// renders before the first event arrives.
type Snapshot struct {
	State     State
	Flags     domain.SessionFlags
	PiP       domain.PiPState
	Call      *domain.Call
	LocalKey  string
	RemoteKey string
	Local     domain.StreamHandle
	Remote    domain.StreamHandle
}

func (s *Session) Snapshot() Snapshot {
	var snap Snapshot
	_ = s.exec(func() error {
		snap = Snapshot{
			State:     s.state,
			Flags:     s.flags.Clone(),
			PiP:       s.pip,
			LocalKey:  s.local.viewKey,
			RemoteKey: s.remote.viewKey,
			Local:     s.local.handle,
			Remote:    s.remote.handle,
		}
		if s.call != nil {
			c := *s.call
			snap.Call = &c
		}
		return nil
	})
	return snap
}

// Close stops the loop for good. Registry.Destroy is the expected caller.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.exec(func() error {
			s.cleanupLoop()
			return nil
		})
		s.cancel()
		close(s.done)
	})
}

func (s *Session) setState(next State) {
	if next == s.state {
		return
	}
	log.Debug().Str("module", "session").Str("from", s.state.String()).Str("to", next.String()).Msg("state transition")
	s.state = next
}

func (s *Session) publish(e core.Event) { s.bus.Publish(e) }

func newViewKey() string { return gonanoid.Must(10) }

// sendSignal logs-and-tolerates signaling send failures during a call; they
// must never abandon the Call on their own.
func (s *Session) sendSignal(what string, err error) {
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Str("signal", what).Msg("signal send failed")
	}
}

// discardLate reports whether an async completion belongs to a torn-down
// call generation and must not touch UI-visible state.
func (s *Session) discardLate(gen uint64) bool {
	if gen != s.gen {
		log.Debug().Str("module", "session").Uint64("gen", gen).Uint64("current", s.gen).Msg("discarding late completion")
		return true
	}
	return false
}
