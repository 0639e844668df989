package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/VoiceBot/internal/domain"
)

// ErrBusy is returned when another command for the same room is in flight.
var ErrBusy = errors.New("already processing")

// JoinError means the assistant could not be confirmed or added as a room member.
type JoinError struct {
	Room domain.RoomID
	Step string // "query", "invite" or "join"
	Err  error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("assistant join (%s) in room %s: %v", e.Step, e.Room, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }

// ResolutionError covers invalid links, extractor failures and policy violations.
type ResolutionError struct {
	Link   string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return "resolve: " + e.Reason
	}
	return fmt.Sprintf("resolve: %s: %v", e.Reason, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// PlaybackError is a call engine refusal on play, pause or resume.
type PlaybackError struct {
	Room domain.RoomID
	Op   string
	Err  error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("engine %s in room %s: %v", e.Op, e.Room, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// InvalidStateError rejects a command locally, before any external call.
type InvalidStateError struct {
	Op    string
	State domain.State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

// EngineCleanupError is a failed leave during Stop. It is logged, never surfaced.
type EngineCleanupError struct {
	Room domain.RoomID
	Err  error
}

func (e *EngineCleanupError) Error() string {
	return fmt.Sprintf("engine leave in room %s: %v", e.Room, e.Err)
}

func (e *EngineCleanupError) Unwrap() error { return e.Err }

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
