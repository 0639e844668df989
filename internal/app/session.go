package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VoiceBot/internal/domain"
)

// Session is the per-room streaming state.
// Mutators must only be called from inside SessionStore.WithLock/TryWithLock;
// readers may call Snapshot at any time.
type Session struct {
	room domain.RoomID

	// lock serializes transitions; a buffered channel so waiting can honour ctx.
	lock    chan struct{}
	evicted bool // guarded by lock

	mu              sync.RWMutex
	state           domain.State
	title           string
	source          string
	assistantJoined bool
	lastErr         error
	generation      uint64
	updatedAt       time.Time
	cancel          context.CancelFunc
	stopPending     bool
}

func newSession(room domain.RoomID, now time.Time) *Session {
	return &Session{
		room:      room,
		lock:      make(chan struct{}, 1),
		state:     domain.StateIdle,
		updatedAt: now,
	}
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) tryAcquire() bool {
	select {
	case s.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Session) release() { <-s.lock }

func (s *Session) Room() domain.RoomID { return s.room }

func (s *Session) State() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Session) AssistantJoined() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assistantJoined
}

func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Transition moves the session to next if the state table allows it.
func (s *Session) Transition(next domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransitionTo(next) {
		return fmt.Errorf("illegal transition %s -> %s", s.state, next)
	}
	s.state = next
	s.updatedAt = time.Now()
	return nil
}

// NextGeneration starts a new play attempt and returns its number.
func (s *Session) NextGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

func (s *Session) SetAssistantJoined(v bool) {
	s.mu.Lock()
	s.assistantJoined = v
	s.mu.Unlock()
}

func (s *Session) SetMedia(title, source string) {
	s.mu.Lock()
	s.title, s.source = title, source
	s.mu.Unlock()
}

func (s *Session) ClearMedia() {
	s.SetMedia("", "")
}

// SetError records err for diagnostics; nil clears it.
func (s *Session) SetError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// SetCancel registers the cancel func of the operation holding the lock.
// If a stop is already pending the operation is cancelled straight away.
func (s *Session) SetCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	pending := s.stopPending
	s.mu.Unlock()
	if cancel != nil && pending {
		cancel()
	}
}

// RequestStop cancels the registered operation and marks a stop as pending,
// so an operation that takes the lock before the stop does is cancelled too.
// Safe without the lock. Reports whether something was cancelled.
func (s *Session) RequestStop() bool {
	s.mu.Lock()
	s.stopPending = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// ClearStopRequest is called by the stop once it holds the lock, or gives up.
func (s *Session) ClearStopRequest() {
	s.mu.Lock()
	s.stopPending = false
	s.mu.Unlock()
}

func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := domain.SessionSnapshot{
		Room:            s.room,
		State:           s.state,
		Title:           s.title,
		Source:          s.source,
		AssistantJoined: s.assistantJoined,
		Generation:      s.generation,
		UpdatedAt:       s.updatedAt,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}
