package devsignal

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meetloop/callcore/internal/domain"
)

var errPeerBackpressure = errors.New("peer backpressure")

const (
	peerSendBuffer  = 32
	peerWriteWindow = 5 * time.Second
)

// peer is one connected client: a websocket plus a buffered outbound queue so
// one slow reader never blocks the hub.
type peer struct {
	id      domain.ConnectionID
	userID  domain.UserID
	profile *domain.Profile
	conn    *websocket.Conn
	send    chan []byte

	mu     sync.Mutex
	closed bool
}

func newPeer(id domain.ConnectionID, userID domain.UserID, profile *domain.Profile, conn *websocket.Conn) *peer {
	return &peer{
		id:      id,
		userID:  userID,
		profile: profile,
		conn:    conn,
		send:    make(chan []byte, peerSendBuffer),
	}
}

func (p *peer) trySend(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("peer closed")
	}
	select {
	case p.send <- data:
		return nil
	default:
		return errPeerBackpressure
	}
}

func (p *peer) writePump() {
	for data := range p.send {
		if err := p.conn.SetWriteDeadline(time.Now().Add(peerWriteWindow)); err != nil {
			log.Error().Err(err).Str("module", "devsignal").Msg("set write deadline")
			return
		}
		if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Str("module", "devsignal").Str("conn", string(p.id)).Msg("write failed")
			return
		}
	}
}

func (p *peer) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.send)
	p.mu.Unlock()
	_ = p.conn.Close()
}
