package orch

import (
	"context"
	"errors"

	"github.com/dkeye/VoiceBot/internal/app"
	"github.com/dkeye/VoiceBot/internal/core"
	"github.com/dkeye/VoiceBot/internal/domain"
)

func (o *Orchestrator) Pause(ctx context.Context, room domain.RoomID) (domain.SessionSnapshot, error) {
	return o.toggle(ctx, room, "pause", domain.StateStreaming, domain.StatePaused, o.Engine.Pause)
}

func (o *Orchestrator) Resume(ctx context.Context, room domain.RoomID) (domain.SessionSnapshot, error) {
	return o.toggle(ctx, room, "resume", domain.StatePaused, domain.StateStreaming, o.Engine.Resume)
}

// toggle flips between Streaming and Paused. Engine failures leave the state alone.
func (o *Orchestrator) toggle(
	ctx context.Context,
	room domain.RoomID,
	op string,
	from, to domain.State,
	call func(context.Context, domain.RoomID) error,
) (domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	err := o.Store.TryWithLock(room, func(s *app.Session) error {
		defer func() { snap = s.Snapshot() }()
		if state := s.State(); state != from {
			return &core.InvalidStateError{Op: op, State: state}
		}
		ectx, cancel := o.engineCtx(ctx)
		defer cancel()
		if err := call(ectx, room); err != nil {
			perr := &core.PlaybackError{Room: room, Op: op, Err: err}
			s.SetError(perr)
			o.logger(room).Warn().Err(perr).Msg(op + " failed")
			return perr
		}
		s.SetError(nil)
		o.enter(s, to, nil)
		return nil
	})
	if errors.Is(err, core.ErrBusy) {
		snap, _ = o.Snapshot(room)
	}
	return snap, err
}

// Stop leaves the call and clears the session whatever the engine says.
// A Play still in flight for the room is cancelled first.
func (o *Orchestrator) Stop(ctx context.Context, room domain.RoomID) (domain.SessionSnapshot, error) {
	pending := o.Store.GetOrCreate(room)
	if pending.RequestStop() {
		o.logger(room).Info().Msg("cancelled in-flight play")
	}
	var snap domain.SessionSnapshot
	err := o.Store.WithLock(ctx, room, func(s *app.Session) error {
		s.ClearStopRequest()
		defer func() { snap = s.Snapshot() }()
		return o.stop(ctx, s)
	})
	if err != nil {
		pending.ClearStopRequest()
	}
	return snap, err
}

func (o *Orchestrator) stop(ctx context.Context, s *app.Session) error {
	room := s.Room()
	state := s.State()
	if state == domain.StateIdle {
		return &core.InvalidStateError{Op: "stop", State: state}
	}

	ectx, cancel := o.engineCtx(ctx)
	err := o.Engine.Leave(ectx, room)
	cancel()
	if err != nil {
		cleanup := &core.EngineCleanupError{Room: room, Err: err}
		o.logger(room).Warn().Err(cleanup).Msg("leave failed, clearing session anyway")
	}

	s.ClearMedia()
	s.SetError(nil)
	o.releaseArtifacts(room, s.Generation())
	o.enter(s, domain.StateStopped, nil)
	return nil
}

// StreamEnded stops a room whose stream finished on its own. Events for a
// session that is no longer streaming or paused are stale and ignored.
func (o *Orchestrator) StreamEnded(ctx context.Context, room domain.RoomID) {
	if _, ok := o.Store.Get(room); !ok {
		return
	}
	err := o.Store.WithLock(ctx, room, func(s *app.Session) error {
		if !s.State().IsActive() {
			return nil
		}
		o.logger(room).Info().Msg("stream ended")
		return o.stop(ctx, s)
	})
	if err != nil {
		o.logger(room).Warn().Err(err).Msg("stop after stream end failed")
	}
}
