package domain

import (
	"fmt"
	"slices"
)

// State is the lifecycle state of a room's streaming session.
type State int

const (
	StateIdle State = iota
	StateJoiningAssistant
	StateResolvingMedia
	StateStreaming
	StatePaused
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoiningAssistant:
		return "joining"
	case StateResolvingMedia:
		return "resolving"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var validTransitions = map[State][]State{
	StateIdle:             {StateJoiningAssistant, StateStopped},
	StateStopped:          {StateIdle, StateJoiningAssistant, StateStopped},
	StateFailed:           {StateIdle, StateStopped},
	StateJoiningAssistant: {StateResolvingMedia, StateFailed, StateStopped},
	StateResolvingMedia:   {StateStreaming, StateFailed, StateStopped},
	StateStreaming:        {StatePaused, StateStopped, StateFailed},
	StatePaused:           {StateStreaming, StateStopped},
}

// CanTransitionTo checks the transition table.
func (s State) CanTransitionTo(next State) bool {
	return slices.Contains(validTransitions[s], next)
}

// CanPlay reports whether a new Play may start from s.
func (s State) CanPlay() bool {
	return s == StateIdle || s == StateStopped || s == StateFailed
}

// IsActive is true while a source is handed to the call engine.
func (s State) IsActive() bool {
	return s == StateStreaming || s == StatePaused
}
