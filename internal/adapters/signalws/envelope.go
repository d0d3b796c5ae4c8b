package signalws

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Wire envelopes. Every frame is a JSON object with a type tag; payload
// fields sit beside it. The shapes are the backend's contract, translated
// here and nowhere else.

const (
	typeWelcome      = "welcome"
	typeMatchFound   = "match-found"
	typeMatchRequest = "match-request"
	typeMatchStop    = "match-stop"
	typeNext         = "next"
	typeCallIncoming = "call-incoming"
	typeCallRequest  = "call-request"
	typeCallAccept   = "call-accept"
	typeCallAccepted = "call-accepted"
	typeCallDecline  = "call-decline"
	typeCallDeclined = "call-declined"
	typeCallEnd      = "call-end"
	typeCallEnded    = "call-ended"
	typePresence     = "presence"
	typeCameraState  = "camera-state"
	typeRemoteMute   = "remote-mute"
	typePiPState     = "pip-state"
	typeMicLevel     = "mic-level"
	typeOffer        = "offer"
	typeAnswer       = "answer"
	typeCandidate    = "candidate"
)

type envelope struct {
	Type string `json:"type"`
}

type welcomeMsg struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
}

type matchFoundMsg struct {
	Type                string `json:"type"`
	PartnerConnectionID string `json:"partner_connection_id"`
	PartnerUserID       string `json:"partner_user_id"`
	RoomID              string `json:"room_id"`
	RoomToken           string `json:"room_token,omitempty"`
	Polite              bool   `json:"polite"`
}

type callIncomingMsg struct {
	Type       string `json:"type"`
	CallID     string `json:"call_id"`
	FromUserID string `json:"from_user_id"`
}

type callRequestMsg struct {
	Type     string `json:"type"`
	ToUserID string `json:"to_user_id"`
}

type callRefMsg struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	RoomID string `json:"room_id,omitempty"`
}

type callEndedMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

type presenceMsg struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type cameraStateMsg struct {
	Type    string `json:"type"`
	From    string `json:"from,omitempty"`
	Enabled bool   `json:"enabled"`
}

type remoteMuteMsg struct {
	Type  string `json:"type"`
	Muted bool   `json:"muted"`
}

type pipStateMsg struct {
	Type  string `json:"type"`
	InPiP bool   `json:"in_pip"`
}

type micLevelMsg struct {
	Type  string    `json:"type"`
	Level float64   `json:"level"`
	Bands []float64 `json:"bands,omitempty"`
}

type sdpMsg struct {
	Type string                    `json:"type"`
	SDP  webrtc.SessionDescription `json:"sdp"`
}

type candidateMsg struct {
	Type      string                  `json:"type"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

func marshal(v any) ([]byte, error) { return json.Marshal(v) }
