package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProfile(t *testing.T) {
	p, err := NewProfile("u1", "charlie", "https://cdn.example/a.png")
	require.NoError(t, err)
	assert.Equal(t, UserID("u1"), p.UserID)
	assert.Equal(t, "charlie", p.Nick)

	_, err = NewProfile("u1", "", "")
	assert.ErrorIs(t, err, ErrNickEmpty)

	_, err = NewProfile("u1", strings.Repeat("x", MaxNickLen+1), "")
	assert.ErrorIs(t, err, ErrNickTooLong)

	p, err = NewProfile("u1", strings.Repeat("x", MaxNickLen), "")
	require.NoError(t, err)
	assert.Len(t, p.Nick, MaxNickLen)
}
