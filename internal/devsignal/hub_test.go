package devsignal

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetloop/callcore/internal/roomtoken"
)

type frame map[string]any

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
	nick string
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub([]byte("test-secret"))
	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func connect(t *testing.T, srv *httptest.Server, userID string) *testClient {
	t.Helper()
	return connectWithNick(t, srv, userID, "")
}

func connectWithNick(t *testing.T, srv *httptest.Server, userID, nick string) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=" + userID
	if nick != "" {
		url += "&nick=" + nick
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &testClient{t: t, conn: conn}
	welcome := c.expect("welcome")
	c.id, _ = welcome["connection_id"].(string)
	c.nick, _ = welcome["nick"].(string)
	require.NotEmpty(t, c.id)
	return c
}

func (c *testClient) send(f frame) {
	c.t.Helper()
	data, err := json.Marshal(f)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, data))
}

// expect reads frames until one of the wanted type arrives.
func (c *testClient) expect(typ string) frame {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %q", typ)
		var f frame
		require.NoError(c.t, json.Unmarshal(data, &f))
		if f["type"] == typ {
			return f
		}
	}
}

func TestMatchmakingPairsTwoClients(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv, "alice")
	b := connect(t, srv, "bob")

	a.send(frame{"type": "match-request"})
	b.send(frame{"type": "match-request"})

	ma := a.expect("match-found")
	mb := b.expect("match-found")

	assert.Equal(t, ma["room_id"], mb["room_id"])
	assert.Equal(t, "bob", ma["partner_user_id"])
	assert.Equal(t, "alice", mb["partner_user_id"])
	assert.NotEqual(t, ma["polite"], mb["polite"], "exactly one side is polite")

	// Tokens decode to the shared room under each client's own identity.
	access, err := roomtoken.Decode(ma["room_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, ma["room_id"], string(access.RoomID))
	assert.Equal(t, "alice", string(access.Identity))
}

func TestRelayBetweenPairedClients(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv, "alice")
	b := connect(t, srv, "bob")
	a.send(frame{"type": "match-request"})
	b.send(frame{"type": "match-request"})
	a.expect("match-found")
	b.expect("match-found")

	a.send(frame{"type": "offer", "sdp": frame{"type": "offer", "sdp": "v=0"}})
	got := b.expect("offer")
	sdp, ok := got["sdp"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v=0", sdp["sdp"])

	b.send(frame{"type": "answer", "sdp": frame{"type": "answer", "sdp": "v=0"}})
	a.expect("answer")
}

func TestCameraStateEchoedAndRelayedWithSenderID(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv, "alice")
	b := connect(t, srv, "bob")
	a.send(frame{"type": "match-request"})
	b.send(frame{"type": "match-request"})
	a.expect("match-found")
	b.expect("match-found")

	a.send(frame{"type": "camera-state", "enabled": false})

	echo := a.expect("camera-state")
	assert.Equal(t, a.id, echo["from"], "echo carries the sender's connection id")
	assert.Equal(t, false, echo["enabled"])

	relayed := b.expect("camera-state")
	assert.Equal(t, a.id, relayed["from"])
}

func TestNextRequeuesSenderAndEndsPartner(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv, "alice")
	b := connect(t, srv, "bob")
	a.send(frame{"type": "match-request"})
	b.send(frame{"type": "match-request"})
	a.expect("match-found")
	b.expect("match-found")

	a.send(frame{"type": "next"})
	ended := b.expect("call-ended")
	assert.Equal(t, "partner-left", ended["reason"])

	// A third client arriving matches the requeued sender.
	c := connect(t, srv, "carol")
	c.send(frame{"type": "match-request"})
	ma := a.expect("match-found")
	mc := c.expect("match-found")
	assert.Equal(t, "carol", ma["partner_user_id"])
	assert.Equal(t, "alice", mc["partner_user_id"])
}

func TestDirectCallFlow(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv, "alice")
	b := connect(t, srv, "bob")

	a.send(frame{"type": "call-request", "to_user_id": "bob"})
	incoming := b.expect("call-incoming")
	assert.Equal(t, "alice", incoming["from_user_id"])
	callID, ok := incoming["call_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, callID)

	b.send(frame{"type": "call-accept", "call_id": callID})
	accepted := a.expect("call-accepted")
	assert.Equal(t, callID, accepted["call_id"])
	assert.NotEmpty(t, accepted["room_id"])

	// Paired now; signaling relays.
	a.send(frame{"type": "offer", "sdp": frame{"type": "offer", "sdp": "v=0"}})
	b.expect("offer")

	a.send(frame{"type": "call-end"})
	ended := b.expect("call-ended")
	assert.Equal(t, "hangup", ended["reason"])
}

func TestCallToUnknownUserDeclined(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv, "alice")

	a.send(frame{"type": "call-request", "to_user_id": "nobody"})
	a.expect("call-declined")
}

func TestCallDeclineReachesInitiator(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv, "alice")
	b := connect(t, srv, "bob")

	a.send(frame{"type": "call-request", "to_user_id": "bob"})
	incoming := b.expect("call-incoming")
	callID := incoming["call_id"].(string)

	b.send(frame{"type": "call-decline", "call_id": callID})
	declined := a.expect("call-declined")
	assert.Equal(t, callID, declined["call_id"])
}

func TestProfileNickCarriedOnFrames(t *testing.T) {
	srv := newTestServer(t)
	a := connectWithNick(t, srv, "alice", "Alice")
	b := connectWithNick(t, srv, "bob", "Bob")
	assert.Equal(t, "Alice", a.nick)

	a.send(frame{"type": "match-request"})
	b.send(frame{"type": "match-request"})
	ma := a.expect("match-found")
	mb := b.expect("match-found")
	assert.Equal(t, "Bob", ma["partner_nick"])
	assert.Equal(t, "Alice", mb["partner_nick"])

	a.send(frame{"type": "next"})
	b.expect("call-ended")

	a.send(frame{"type": "call-request", "to_user_id": "bob"})
	incoming := b.expect("call-incoming")
	assert.Equal(t, "Alice", incoming["from_nick"])
}

func TestProfileNickFallsBackToUserID(t *testing.T) {
	srv := newTestServer(t)
	tooLong := strings.Repeat("x", 40)
	a := connectWithNick(t, srv, "alice", tooLong)
	assert.Equal(t, "alice", a.nick, "an invalid nick falls back to the user id")
}

func TestDisconnectEndsPartnerCall(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv, "alice")
	b := connect(t, srv, "bob")
	a.send(frame{"type": "match-request"})
	b.send(frame{"type": "match-request"})
	a.expect("match-found")
	b.expect("match-found")

	a.conn.Close()
	ended := b.expect("call-ended")
	assert.Equal(t, "partner-left", ended["reason"])
}
