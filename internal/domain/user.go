// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"strconv"
)

var ErrIdentityEmpty = errors.New("identity id empty")

type UserID int64

func (u UserID) String() string { return strconv.FormatInt(int64(u), 10) }

// Identity is one of the two accounts the bot runs as: the primary one that
// receives commands, or the assistant that joins calls.
type Identity struct {
	ID       UserID `json:"id"`
	Username string `json:"username,omitempty"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(id UserID, username string) (Identity, error) {
	if id == 0 {
		return Identity{}, ErrIdentityEmpty
	}
	return Identity{ID: id, Username: username}, nil
}
