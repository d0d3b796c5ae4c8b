// Package devsignal is a single-process signaling backend for local
// development and integration tests: match queue, direct-call routing, and
// frame relay between paired clients. It speaks the same wire protocol the
// production backend does, with none of the persistence.
package devsignal

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/meetloop/callcore/internal/domain"
	"github.com/meetloop/callcore/internal/roomtoken"
)

const roomTokenTTL = time.Hour

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type pendingCall struct {
	from domain.ConnectionID
	to   domain.ConnectionID
}

// Hub owns all connected peers and the matchmaking state.
type Hub struct {
	secret []byte

	mu      sync.Mutex
	peers   map[domain.ConnectionID]*peer
	byUser  map[domain.UserID]domain.ConnectionID
	waiting []domain.ConnectionID
	pairs   map[domain.ConnectionID]domain.ConnectionID
	calls   map[domain.CallID]pendingCall
}

func NewHub(secret []byte) *Hub {
	return &Hub{
		secret: secret,
		peers:  make(map[domain.ConnectionID]*peer),
		byUser: make(map[domain.UserID]domain.ConnectionID),
		pairs:  make(map[domain.ConnectionID]domain.ConnectionID),
		calls:  make(map[domain.CallID]pendingCall),
	}
}

// HandleWS upgrades the request and serves the peer until it disconnects.
func (h *Hub) HandleWS(c *gin.Context) {
	userID := domain.UserID(c.Query("user_id"))
	if userID == "" {
		userID = domain.UserID(gonanoid.Must(12))
	}
	profile := peerProfile(userID, c.Query("nick"))
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "devsignal").Msg("upgrade failed")
		return
	}

	p := newPeer(domain.ConnectionID(gonanoid.Must(12)), userID, profile, ws)
	h.register(p)
	go p.writePump()
	h.sendTo(p, welcomeFrame{Type: "welcome", ConnectionID: string(p.id), Nick: profile.Nick})
	log.Info().Str("module", "devsignal").Str("conn", string(p.id)).Str("user", string(userID)).Msg("peer connected")

	defer h.unregister(p)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "devsignal").Str("conn", string(p.id)).Msg("read ended")
			return
		}
		h.dispatch(p, data)
	}
}

// peerProfile validates the requested nick; anything rejected falls back to a
// nick derived from the user id so every peer always has a displayable name.
func peerProfile(userID domain.UserID, nick string) *domain.Profile {
	if profile, err := domain.NewProfile(userID, nick, ""); err == nil {
		return profile
	}
	fallback := string(userID)
	if len(fallback) > domain.MaxNickLen {
		fallback = fallback[:domain.MaxNickLen]
	}
	profile, err := domain.NewProfile(userID, fallback, "")
	if err != nil {
		// Unreachable: user ids are never empty here.
		return &domain.Profile{UserID: userID, Nick: fallback}
	}
	return profile
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	h.peers[p.id] = p
	h.byUser[p.userID] = p.id
	h.mu.Unlock()
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	delete(h.peers, p.id)
	if h.byUser[p.userID] == p.id {
		delete(h.byUser, p.userID)
	}
	h.dequeueLocked(p.id)
	partner := h.breakPairLocked(p.id)
	for id, call := range h.calls {
		if call.from == p.id || call.to == p.id {
			delete(h.calls, id)
		}
	}
	h.mu.Unlock()

	if partner != nil {
		h.sendTo(partner, endedFrame{Type: "call-ended", Reason: "partner-left"})
	}
	p.close()
	log.Info().Str("module", "devsignal").Str("conn", string(p.id)).Msg("peer disconnected")
}

func (h *Hub) dispatch(p *peer, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "devsignal").Msg("bad json")
		return
	}
	switch env.Type {
	case "match-request":
		h.enqueue(p)
	case "match-stop":
		h.mu.Lock()
		h.dequeueLocked(p.id)
		h.mu.Unlock()
	case "next":
		h.handleNext(p)
	case "call-request":
		h.handleCallRequest(p, data)
	case "call-accept":
		h.handleCallAccept(p, data)
	case "call-decline":
		h.handleCallDecline(p, data)
	case "call-end":
		h.handleCallEnd(p)
	case "camera-state":
		h.handleCameraState(p, data)
	case "presence":
		// Presence is accepted and dropped; the dev hub tracks liveness by
		// the socket itself.
	case "offer", "answer", "candidate", "remote-mute", "pip-state", "mic-level":
		h.relay(p, data)
	default:
		log.Warn().Str("module", "devsignal").Str("type", env.Type).Msg("unknown frame")
	}
}

// enqueue adds the peer to the match queue and pairs it immediately when
// another peer is already waiting.
func (h *Hub) enqueue(p *peer) {
	h.mu.Lock()
	for _, id := range h.waiting {
		if id == p.id {
			h.mu.Unlock()
			return
		}
	}
	h.waiting = append(h.waiting, p.id)
	a, b := h.popPairLocked()
	h.mu.Unlock()
	if a != nil && b != nil {
		h.match(a, b)
	}
}

func (h *Hub) popPairLocked() (*peer, *peer) {
	if len(h.waiting) < 2 {
		return nil, nil
	}
	aID, bID := h.waiting[0], h.waiting[1]
	h.waiting = h.waiting[2:]
	a, b := h.peers[aID], h.peers[bID]
	if a == nil || b == nil {
		return nil, nil
	}
	h.pairs[a.id] = b.id
	h.pairs[b.id] = a.id
	return a, b
}

func (h *Hub) match(a, b *peer) {
	room := domain.RoomID("room-" + gonanoid.Must(10))
	tokenA, errA := roomtoken.Mint(h.secret, room, a.userID, roomTokenTTL)
	tokenB, errB := roomtoken.Mint(h.secret, room, b.userID, roomTokenTTL)
	if errA != nil || errB != nil {
		log.Error().AnErr("err_a", errA).AnErr("err_b", errB).Str("module", "devsignal").Msg("mint room token")
	}
	// Exactly one side is polite; the impolite side initiates the offer.
	h.sendTo(a, matchFoundFrame{
		Type: "match-found", PartnerConnectionID: string(b.id), PartnerUserID: string(b.userID),
		PartnerNick: b.profile.Nick, RoomID: string(room), RoomToken: tokenA, Polite: false,
	})
	h.sendTo(b, matchFoundFrame{
		Type: "match-found", PartnerConnectionID: string(a.id), PartnerUserID: string(a.userID),
		PartnerNick: a.profile.Nick, RoomID: string(room), RoomToken: tokenB, Polite: true,
	})
	log.Info().Str("module", "devsignal").Str("room", string(room)).
		Str("a", string(a.id)).Str("b", string(b.id)).Msg("matched")
}

// handleNext tears the sender's pair down and requeues only the sender; the
// abandoned partner is told the call ended and must start again.
func (h *Hub) handleNext(p *peer) {
	h.mu.Lock()
	partner := h.breakPairLocked(p.id)
	h.waiting = append(h.waiting, p.id)
	a, b := h.popPairLocked()
	h.mu.Unlock()

	if partner != nil {
		h.sendTo(partner, endedFrame{Type: "call-ended", Reason: "partner-left"})
	}
	if a != nil && b != nil {
		h.match(a, b)
	}
}

func (h *Hub) handleCallRequest(p *peer, data []byte) {
	var m struct {
		ToUserID string `json:"to_user_id"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}
	h.mu.Lock()
	targetID, ok := h.byUser[domain.UserID(m.ToUserID)]
	target := h.peers[targetID]
	var callID domain.CallID
	if ok && target != nil {
		callID = domain.CallID("call-" + gonanoid.Must(10))
		h.calls[callID] = pendingCall{from: p.id, to: targetID}
	}
	h.mu.Unlock()

	if target == nil {
		h.sendTo(p, callRefFrame{Type: "call-declined"})
		return
	}
	h.sendTo(target, incomingFrame{
		Type: "call-incoming", CallID: string(callID),
		FromUserID: string(p.userID), FromNick: p.profile.Nick,
	})
}

func (h *Hub) handleCallAccept(p *peer, data []byte) {
	var m struct {
		CallID string `json:"call_id"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}
	h.mu.Lock()
	call, ok := h.calls[domain.CallID(m.CallID)]
	if !ok || call.to != p.id {
		h.mu.Unlock()
		return
	}
	delete(h.calls, domain.CallID(m.CallID))
	initiator := h.peers[call.from]
	h.pairs[call.from] = call.to
	h.pairs[call.to] = call.from
	h.mu.Unlock()

	room := domain.RoomID("room-" + gonanoid.Must(10))
	if initiator != nil {
		h.sendTo(initiator, callRefFrame{Type: "call-accepted", CallID: m.CallID, RoomID: string(room)})
	}
}

func (h *Hub) handleCallDecline(p *peer, data []byte) {
	var m struct {
		CallID string `json:"call_id"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}
	h.mu.Lock()
	call, ok := h.calls[domain.CallID(m.CallID)]
	if ok && call.to == p.id {
		delete(h.calls, domain.CallID(m.CallID))
	}
	initiator := h.peers[call.from]
	h.mu.Unlock()
	if ok && initiator != nil {
		h.sendTo(initiator, callRefFrame{Type: "call-declined", CallID: m.CallID})
	}
}

func (h *Hub) handleCallEnd(p *peer) {
	h.mu.Lock()
	partner := h.breakPairLocked(p.id)
	h.mu.Unlock()
	if partner != nil {
		h.sendTo(partner, endedFrame{Type: "call-ended", Reason: "hangup"})
	}
}

// handleCameraState stamps the sender's connection id and both relays to the
// partner and echoes back, matching production backend behavior.
func (h *Hub) handleCameraState(p *peer, data []byte) {
	var m struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}
	frame := cameraFrame{Type: "camera-state", From: string(p.id), Enabled: m.Enabled}
	h.sendTo(p, frame)
	h.mu.Lock()
	partner := h.peers[h.pairs[p.id]]
	h.mu.Unlock()
	if partner != nil {
		h.sendTo(partner, frame)
	}
}

func (h *Hub) relay(p *peer, data []byte) {
	h.mu.Lock()
	partner := h.peers[h.pairs[p.id]]
	h.mu.Unlock()
	if partner == nil {
		log.Debug().Str("module", "devsignal").Str("conn", string(p.id)).Msg("relay with no partner")
		return
	}
	if err := partner.trySend(data); err != nil {
		log.Warn().Err(err).Str("module", "devsignal").Str("conn", string(partner.id)).Msg("relay dropped")
	}
}

func (h *Hub) breakPairLocked(id domain.ConnectionID) *peer {
	partnerID, ok := h.pairs[id]
	if !ok {
		return nil
	}
	delete(h.pairs, id)
	delete(h.pairs, partnerID)
	return h.peers[partnerID]
}

func (h *Hub) dequeueLocked(id domain.ConnectionID) {
	for i, w := range h.waiting {
		if w == id {
			h.waiting = append(h.waiting[:i], h.waiting[i+1:]...)
			return
		}
	}
}

func (h *Hub) sendTo(p *peer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "devsignal").Msg("marshal frame")
		return
	}
	if err := p.trySend(data); err != nil {
		log.Warn().Err(err).Str("module", "devsignal").Str("conn", string(p.id)).Msg("send dropped")
	}
}

// Outbound frame shapes. Field names must track the client adapter.

type welcomeFrame struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
	Nick         string `json:"nick,omitempty"`
}

type matchFoundFrame struct {
	Type                string `json:"type"`
	PartnerConnectionID string `json:"partner_connection_id"`
	PartnerUserID       string `json:"partner_user_id"`
	PartnerNick         string `json:"partner_nick,omitempty"`
	RoomID              string `json:"room_id"`
	RoomToken           string `json:"room_token,omitempty"`
	Polite              bool   `json:"polite"`
}

type incomingFrame struct {
	Type       string `json:"type"`
	CallID     string `json:"call_id"`
	FromUserID string `json:"from_user_id"`
	FromNick   string `json:"from_nick,omitempty"`
}

type callRefFrame struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	RoomID string `json:"room_id,omitempty"`
}

type endedFrame struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

type cameraFrame struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	Enabled bool   `json:"enabled"`
}
