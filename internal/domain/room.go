package domain

import (
	"strconv"
	"time"
)

type (
	// RoomID is the chat id of the group whose call a session drives.
	RoomID    int64
	MessageID int
)

func (r RoomID) String() string { return strconv.FormatInt(int64(r), 10) }

// SessionSnapshot is a read-only copy of a room's session.
// No locks or handles here, safe to hand to APIs.
type SessionSnapshot struct {
	Room            RoomID    `json:"room"`
	State           State     `json:"state"`
	Title           string    `json:"title,omitempty"`
	Source          string    `json:"source,omitempty"`
	AssistantJoined bool      `json:"assistant_joined"`
	LastError       string    `json:"last_error,omitempty"`
	Generation      uint64    `json:"generation"`
	UpdatedAt       time.Time `json:"updated_at"`
}
