package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("call engine not connected")
	ErrDisconnected = errors.New("call engine connection lost")
)

// codeAlreadyParticipant is returned by join_by_invite when the assistant is
// already in the chat; the join counts as done.
const codeAlreadyParticipant = "already_participant"

// Unsolicited events that end a room's stream without a command.
const (
	eventStreamEnded = "stream_ended"
	eventCallClosed  = "call_closed"
)

// Credentials authenticate the assistant account inside the sidecar.
type Credentials struct {
	APIID         int    `json:"api_id"`
	APIHash       string `json:"api_hash"`
	SessionString string `json:"session_string"`
}

type request struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Room        int64        `json:"room,omitempty"`
	Source      string       `json:"source,omitempty"`
	Audio       string       `json:"audio_quality,omitempty"`
	Video       string       `json:"video_quality,omitempty"`
	Link        string       `json:"link,omitempty"`
	Credentials *Credentials `json:"credentials,omitempty"`
}

type response struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`

	// whoami
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	// events
	Room int64 `json:"room,omitempty"`
}

// RemoteError is a request the sidecar answered with ok=false.
type RemoteError struct {
	Op      string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}
