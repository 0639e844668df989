package orch

import (
	"context"
	"errors"

	"github.com/dkeye/VoiceBot/internal/app"
	"github.com/dkeye/VoiceBot/internal/core"
	"github.com/dkeye/VoiceBot/internal/domain"
)

// Play runs membership, resolution and engine play for room, in that order.
// An overlapping command for the same room fails fast with core.ErrBusy.
func (o *Orchestrator) Play(ctx context.Context, room domain.RoomID, link string, progress ProgressFunc) (domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	err := o.Store.TryWithLock(room, func(s *app.Session) error {
		err := o.play(ctx, s, link, progress)
		snap = s.Snapshot()
		return err
	})
	if errors.Is(err, core.ErrBusy) {
		snap, _ = o.Snapshot(room)
	}
	return snap, err
}

func (o *Orchestrator) play(ctx context.Context, s *app.Session, link string, progress ProgressFunc) error {
	room := s.Room()
	state := s.State()
	if !state.CanPlay() {
		return &core.InvalidStateError{Op: "play", State: state}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.SetCancel(cancel)
	defer func() {
		s.SetCancel(nil)
		cancel()
	}()
	// A stop that arrived before the cancel func was registered.
	if err := ctx.Err(); err != nil {
		return err
	}

	if state == domain.StateFailed {
		o.enter(s, domain.StateIdle, nil)
	}
	gen := s.NextGeneration()
	s.SetError(nil)
	logger := o.logger(room).With().Uint64("generation", gen).Logger()

	o.enter(s, domain.StateJoiningAssistant, progress)
	if err := o.Membership.EnsureMember(ctx, room); err != nil {
		return o.fail(s, gen, err)
	}
	s.SetAssistantJoined(true)

	o.enter(s, domain.StateResolvingMedia, progress)
	media, err := o.Media.Resolve(ctx, room, gen, link)
	if err != nil {
		return o.fail(s, gen, err)
	}
	logger.Info().Str("title", media.Title).Dur("duration", media.Duration).Bool("local", media.Local).Msg("media resolved")

	ectx, ecancel := o.engineCtx(ctx)
	err = o.Engine.Play(ectx, room, media.Source, o.Quality)
	ecancel()
	if err != nil {
		return o.fail(s, gen, &core.PlaybackError{Room: room, Op: "play", Err: err})
	}

	s.SetMedia(media.Title, media.Source)
	o.enter(s, domain.StateStreaming, progress)
	return nil
}

// fail parks the session in Failed, dropping whatever this attempt produced.
func (o *Orchestrator) fail(s *app.Session, gen uint64, err error) error {
	s.ClearMedia()
	s.SetError(err)
	o.releaseArtifacts(s.Room(), gen)
	o.logger(s.Room()).Warn().Err(err).Uint64("generation", gen).Msg("play failed")
	o.enter(s, domain.StateFailed, nil)
	return err
}
