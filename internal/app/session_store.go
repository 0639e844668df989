package app

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/VoiceBot/internal/core"
	"github.com/dkeye/VoiceBot/internal/domain"
	"github.com/rs/zerolog/log"
)

// SessionStore keeps one Session per room for the life of the process.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.RoomID]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[domain.RoomID]*Session)}
}

func (st *SessionStore) GetOrCreate(room domain.RoomID) *Session {
	st.mu.RLock()
	s, ok := st.sessions[room]
	st.mu.RUnlock()
	if ok {
		return s
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok = st.sessions[room]; ok {
		return s
	}
	s = newSession(room, time.Now())
	st.sessions[room] = s
	log.Debug().Str("module", "app.store").Stringer("room", room).Msg("session created")
	return s
}

func (st *SessionStore) Get(room domain.RoomID) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[room]
	return s, ok
}

// WithLock runs fn while holding the room's lock, waiting for it if needed.
func (st *SessionStore) WithLock(ctx context.Context, room domain.RoomID, fn func(*Session) error) error {
	for {
		s := st.GetOrCreate(room)
		if err := s.acquire(ctx); err != nil {
			return err
		}
		if s.evicted {
			s.release()
			continue
		}
		return run(s, fn)
	}
}

// TryWithLock is WithLock that fails with core.ErrBusy instead of waiting.
func (st *SessionStore) TryWithLock(room domain.RoomID, fn func(*Session) error) error {
	for {
		s := st.GetOrCreate(room)
		if !s.tryAcquire() {
			return core.ErrBusy
		}
		if s.evicted {
			s.release()
			continue
		}
		return run(s, fn)
	}
}

func run(s *Session, fn func(*Session) error) error {
	defer s.release()
	return fn(s)
}

func (st *SessionStore) List() []domain.SessionSnapshot {
	st.mu.RLock()
	out := make([]domain.SessionSnapshot, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s.Snapshot())
	}
	st.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.SessionSnapshot) int {
		switch {
		case a.Room < b.Room:
			return -1
		case a.Room > b.Room:
			return 1
		}
		return 0
	})
	return out
}

// EvictIdle drops resting sessions (idle or stopped) untouched for longer than
// olderThan. Sessions whose lock is held are skipped.
func (st *SessionStore) EvictIdle(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for room, s := range st.sessions {
		if !s.tryAcquire() {
			continue
		}
		snap := s.Snapshot()
		if (snap.State == domain.StateIdle || snap.State == domain.StateStopped) && snap.UpdatedAt.Before(cutoff) {
			s.evicted = true
			delete(st.sessions, room)
			n++
		}
		s.release()
	}
	if n > 0 {
		log.Info().Str("module", "app.store").Int("evicted", n).Msg("evicted idle sessions")
	}
	return n
}
