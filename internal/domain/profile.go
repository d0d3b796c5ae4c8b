package domain

import "errors"

const MaxNickLen = 36

var (
	ErrNickTooLong = errors.New("nick too long")
	ErrNickEmpty   = errors.New("nick empty")
)

// Profile is the cached user profile (nick, avatar) consumed by UI decisions.
// Read-only input for the core, owned by the backing store.
type Profile struct {
	UserID    UserID `json:"user_id"`
	Nick      string `json:"nick"`
	AvatarURL string `json:"avatar_url"`
}

// NewProfile is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewProfile(id UserID, nick, avatarURL string) (*Profile, error) {
	if len(nick) == 0 {
		return nil, ErrNickEmpty
	}
	if len(nick) > MaxNickLen {
		return nil, ErrNickTooLong
	}
	return &Profile{UserID: id, Nick: nick, AvatarURL: avatarURL}, nil
}
