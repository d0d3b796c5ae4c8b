// Package signalws is the gorilla/websocket implementation of the signaling
// channel: wire envelopes out, typed inbound signals in, nothing smarter.
package signalws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/meetloop/callcore/internal/core"
	"github.com/meetloop/callcore/internal/domain"
)

var (
	ErrBackpressure  = errors.New("backpressure")
	ErrChannelClosed = errors.New("channel closed")
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

// Channel implements core.SignalChannel over one websocket connection.
// Reconnects belong to the layer above: a read failure here is terminal and
// surfaces as InDisconnected exactly once.
type Channel struct {
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	closed  bool
	handler func(core.Inbound)

	disconnectOnce sync.Once
}

// Dial connects and starts the pumps. Attach the inbound handler before the
// backend can push anything meaningful.
func Dial(ctx context.Context, url string) (*Channel, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Channel{
		conn: ws,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump(ctx)
	go c.readPump(ctx)
	log.Info().Str("module", "signalws").Str("url", url).Msg("connected")
	return c, nil
}

// Attach sets the single inbound handler.
func (c *Channel) Attach(handler func(core.Inbound)) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

func (c *Channel) deliver(in core.Inbound) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil {
		log.Warn().Str("module", "signalws").Type("inbound", in).Msg("no handler attached, dropping")
		return
	}
	h(in)
}

func (c *Channel) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Channel) sendJSON(v any) error {
	b, err := marshal(v)
	if err != nil {
		return err
	}
	return c.trySend(b)
}

func (c *Channel) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signalws").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signalws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signalws").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Channel) readPump(ctx context.Context) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			c.notifyDisconnect(ctx.Err())
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Warn().Err(err).Str("module", "signalws").Msg("readPump read error")
				c.notifyDisconnect(err)
				return
			}
			c.dispatch(data)
		}
	}
}

func (c *Channel) notifyDisconnect(err error) {
	c.disconnectOnce.Do(func() {
		c.deliver(core.InDisconnected{Err: err})
	})
}

func (c *Channel) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signalws").Msg("bad json")
		return
	}
	switch env.Type {
	case typeWelcome:
		var m welcomeMsg
		if json.Unmarshal(data, &m) == nil {
			c.deliver(core.InWelcome{ConnectionID: domain.ConnectionID(m.ConnectionID)})
		}
	case typeMatchFound:
		var m matchFoundMsg
		if json.Unmarshal(data, &m) == nil {
			c.deliver(core.InMatchFound{
				PartnerConnectionID: domain.ConnectionID(m.PartnerConnectionID),
				PartnerUserID:       domain.UserID(m.PartnerUserID),
				RoomID:              domain.RoomID(m.RoomID),
				RoomToken:           m.RoomToken,
				Polite:              m.Polite,
			})
		}
	case typeCallIncoming:
		var m callIncomingMsg
		if json.Unmarshal(data, &m) == nil {
			c.deliver(core.InCallIncoming{
				CallID:     domain.CallID(m.CallID),
				FromUserID: domain.UserID(m.FromUserID),
			})
		}
	case typeCallAccepted:
		var m callRefMsg
		if json.Unmarshal(data, &m) == nil {
			c.deliver(core.InCallAccepted{CallID: domain.CallID(m.CallID), RoomID: domain.RoomID(m.RoomID)})
		}
	case typeCallDeclined:
		var m callRefMsg
		if json.Unmarshal(data, &m) == nil {
			c.deliver(core.InCallDeclined{CallID: domain.CallID(m.CallID)})
		}
	case typeCallEnded:
		var m callEndedMsg
		if json.Unmarshal(data, &m) == nil {
			c.deliver(core.InCallEnded{Reason: m.Reason})
		}
	case typeCameraState:
		var m cameraStateMsg
		if json.Unmarshal(data, &m) == nil {
			c.deliver(core.InCameraState{From: domain.ConnectionID(m.From), Enabled: m.Enabled})
		}
	case typeRemoteMute:
		var m remoteMuteMsg
		if json.Unmarshal(data, &m) == nil {
			c.deliver(core.InRemoteMute{Muted: m.Muted})
		}
	case typePiPState:
		var m pipStateMsg
		if json.Unmarshal(data, &m) == nil {
			c.deliver(core.InPiPState{InPiP: m.InPiP})
		}
	case typeMicLevel:
		var m micLevelMsg
		if json.Unmarshal(data, &m) == nil {
			c.deliver(core.InMicLevel{Level: m.Level, Bands: m.Bands})
		}
	case typeOffer:
		var m sdpMsg
		if json.Unmarshal(data, &m) == nil {
			c.deliver(core.InOffer{SDP: m.SDP})
		}
	case typeAnswer:
		var m sdpMsg
		if json.Unmarshal(data, &m) == nil {
			c.deliver(core.InAnswer{SDP: m.SDP})
		}
	case typeCandidate:
		var m candidateMsg
		if json.Unmarshal(data, &m) == nil {
			c.deliver(core.InCandidate{Candidate: m.Candidate})
		}
	default:
		log.Warn().Str("module", "signalws").Str("type", env.Type).Msg("unknown signal")
	}
}

// Outbound commands.

func (c *Channel) SendPresence(status string) error {
	return c.sendJSON(presenceMsg{Type: typePresence, Status: status})
}

func (c *Channel) SendCameraState(enabled bool) error {
	return c.sendJSON(cameraStateMsg{Type: typeCameraState, Enabled: enabled})
}

func (c *Channel) SendPiPState(inPiP bool) error {
	return c.sendJSON(pipStateMsg{Type: typePiPState, InPiP: inPiP})
}

func (c *Channel) SendMatchRequest() error {
	return c.sendJSON(envelope{Type: typeMatchRequest})
}

func (c *Channel) SendMatchStop() error {
	return c.sendJSON(envelope{Type: typeMatchStop})
}

func (c *Channel) SendNext() error {
	return c.sendJSON(envelope{Type: typeNext})
}

func (c *Channel) SendCallRequest(to domain.UserID) error {
	return c.sendJSON(callRequestMsg{Type: typeCallRequest, ToUserID: string(to)})
}

func (c *Channel) SendCallAccept(id domain.CallID) error {
	return c.sendJSON(callRefMsg{Type: typeCallAccept, CallID: string(id)})
}

func (c *Channel) SendCallDecline(id domain.CallID) error {
	return c.sendJSON(callRefMsg{Type: typeCallDecline, CallID: string(id)})
}

func (c *Channel) SendCallEnd() error {
	return c.sendJSON(envelope{Type: typeCallEnd})
}

func (c *Channel) SendOffer(sdp webrtc.SessionDescription) error {
	return c.sendJSON(sdpMsg{Type: typeOffer, SDP: sdp})
}

func (c *Channel) SendAnswer(sdp webrtc.SessionDescription) error {
	return c.sendJSON(sdpMsg{Type: typeAnswer, SDP: sdp})
}

func (c *Channel) SendCandidate(cand webrtc.ICECandidateInit) error {
	return c.sendJSON(candidateMsg{Type: typeCandidate, Candidate: cand})
}

// Close is idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
	log.Info().Str("module", "signalws").Msg("closed")
}
