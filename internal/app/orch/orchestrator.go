// Package orch drives the per-room streaming state machine.
package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/VoiceBot/internal/app"
	"github.com/dkeye/VoiceBot/internal/core"
	"github.com/dkeye/VoiceBot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Membership is satisfied by *app.MembershipManager.
type Membership interface {
	EnsureMember(ctx context.Context, room domain.RoomID) error
}

// MediaSource is satisfied by *app.MediaResolver.
type MediaSource interface {
	Resolve(ctx context.Context, room domain.RoomID, generation uint64, link string) (domain.ResolvedMedia, error)
}

// ProgressFunc is told about every state a Play enters.
type ProgressFunc func(domain.State)

type Orchestrator struct {
	Store      *app.SessionStore
	Membership Membership
	Media      MediaSource
	Engine     core.CallEngine
	// Artifacts may be nil when media is never downloaded.
	Artifacts     core.ArtifactStore
	Quality       domain.Quality
	EngineTimeout time.Duration
}

func (o *Orchestrator) Snapshot(room domain.RoomID) (domain.SessionSnapshot, bool) {
	s, ok := o.Store.Get(room)
	if !ok {
		return domain.SessionSnapshot{}, false
	}
	return s.Snapshot(), true
}

func (o *Orchestrator) Sessions() []domain.SessionSnapshot {
	return o.Store.List()
}

// StopAll stops every session that still holds a source or has work in
// flight. Used on shutdown.
func (o *Orchestrator) StopAll(ctx context.Context) {
	for _, snap := range o.Store.List() {
		if snap.State == domain.StateIdle || snap.State == domain.StateStopped {
			continue
		}
		if _, err := o.Stop(ctx, snap.Room); err != nil {
			var invalid *core.InvalidStateError
			if !errors.As(err, &invalid) {
				log.Warn().Err(err).Str("module", "orch").Stringer("room", snap.Room).Msg("stop on shutdown failed")
			}
		}
	}
}

func (o *Orchestrator) logger(room domain.RoomID) *zerolog.Logger {
	l := log.With().Str("module", "orch").Stringer("room", room).Logger()
	return &l
}

func (o *Orchestrator) engineCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return app.WithStageTimeout(ctx, o.EngineTimeout)
}

func (o *Orchestrator) releaseArtifacts(room domain.RoomID, generation uint64) {
	if o.Artifacts == nil || generation == 0 {
		return
	}
	if err := o.Artifacts.Release(room, generation); err != nil {
		o.logger(room).Warn().Err(err).Uint64("generation", generation).Msg("artifact release failed")
	}
}

// enter moves s to next and reports it. The table forbids nothing the
// callers here attempt, so an error means a bug and is logged loudly.
func (o *Orchestrator) enter(s *app.Session, next domain.State, progress ProgressFunc) {
	if err := s.Transition(next); err != nil {
		o.logger(s.Room()).Error().Err(err).Msg("state machine violation")
		return
	}
	o.logger(s.Room()).Info().Stringer("state", next).Msg("transition")
	if progress != nil {
		progress(next)
	}
}
