// Package roomtoken reads routing claims out of backend-issued room access
// tokens. The token is signed for the media server, not for us; the client
// only extracts which room to join and under which identity, so the signature
// is deliberately not verified here.
package roomtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meetloop/callcore/internal/domain"
)

var ErrNoRoom = errors.New("token carries no room grant")

// RoomAccess is the routing slice of a room token.
type RoomAccess struct {
	RoomID   domain.RoomID
	Identity domain.UserID
}

type videoGrant struct {
	Room     string `json:"room"`
	RoomJoin bool   `json:"roomJoin"`
}

type roomClaims struct {
	jwt.RegisteredClaims
	Video videoGrant `json:"video"`
}

// Decode parses token without signature verification and returns its room
// grant. Fails if the token is malformed or grants no room.
func Decode(token string) (RoomAccess, error) {
	var claims roomClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return RoomAccess{}, fmt.Errorf("parse room token: %w", err)
	}
	if claims.Video.Room == "" || !claims.Video.RoomJoin {
		return RoomAccess{}, ErrNoRoom
	}
	return RoomAccess{
		RoomID:   domain.RoomID(claims.Video.Room),
		Identity: domain.UserID(claims.Subject),
	}, nil
}

// Mint signs a room token for the given identity. Production tokens come from
// the backend; this exists for the dev signaling server and tests.
func Mint(secret []byte, room domain.RoomID, identity domain.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := roomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Video: videoGrant{Room: string(room), RoomJoin: true},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
