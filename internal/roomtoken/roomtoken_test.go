package roomtoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintDecodeRoundTrip(t *testing.T) {
	token, err := Mint([]byte("secret"), "room-42", "user-7", time.Hour)
	require.NoError(t, err)

	access, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "room-42", string(access.RoomID))
	assert.Equal(t, "user-7", string(access.Identity))
}

func TestDecodeIgnoresSignature(t *testing.T) {
	// The media server verifies; the client only routes.
	token, err := Mint([]byte("some-other-secret"), "room-1", "u", time.Hour)
	require.NoError(t, err)

	access, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "room-1", string(access.RoomID))
}

func TestDecodeMalformedToken(t *testing.T) {
	_, err := Decode("not.a.jwt")
	assert.Error(t, err)

	_, err = Decode("")
	assert.Error(t, err)
}

func TestDecodeTokenWithoutRoomGrant(t *testing.T) {
	token, err := Mint([]byte("secret"), "", "user-7", time.Hour)
	require.NoError(t, err)

	_, err = Decode(token)
	assert.ErrorIs(t, err, ErrNoRoom)
}
