// Package dispatch maps chat commands onto the room state machine and renders
// the replies.
package dispatch

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dkeye/VoiceBot/internal/app/orch"
	"github.com/dkeye/VoiceBot/internal/core"
	"github.com/dkeye/VoiceBot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Command is a parsed bot command.
type Command struct {
	Room      domain.RoomID
	Private   bool
	User      domain.UserID
	MessageID domain.MessageID
	Name      string
	Args      string
}

// Controller is satisfied by *orch.Orchestrator.
type Controller interface {
	Play(ctx context.Context, room domain.RoomID, link string, progress orch.ProgressFunc) (domain.SessionSnapshot, error)
	Pause(ctx context.Context, room domain.RoomID) (domain.SessionSnapshot, error)
	Resume(ctx context.Context, room domain.RoomID) (domain.SessionSnapshot, error)
	Stop(ctx context.Context, room domain.RoomID) (domain.SessionSnapshot, error)
}

// replyTimeout bounds final replies, which outlive the command's ctx.
const replyTimeout = 10 * time.Second

type Dispatcher struct {
	Chat    core.ChatClient
	Orch    Controller
	Limiter *RateLimiter
}

func New(chat core.ChatClient, ctrl Controller, limiter *RateLimiter) *Dispatcher {
	return &Dispatcher{Chat: chat, Orch: ctrl, Limiter: limiter}
}

// Handle runs one command to completion. Call it on its own goroutine; it
// never panics out and never touches other rooms.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) {
	logger := log.With().
		Str("module", "dispatch").
		Stringer("room", cmd.Room).
		Stringer("user", cmd.User).
		Str("command", cmd.Name).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("command handler panicked")
			d.reply(ctx, cmd, "❌ Internal error.")
		}
	}()

	logger.Info().Str("args", cmd.Args).Msg("command received")

	switch cmd.Name {
	case "start", "help":
		d.reply(ctx, cmd, textStart)
		return
	case "play", "pause", "resume", "stop":
	default:
		logger.Debug().Msg("ignoring unknown command")
		return
	}

	if d.Limiter != nil && !d.Limiter.Allow(cmd.User) {
		logger.Warn().Msg("rate limited")
		d.reply(ctx, cmd, textSlowDown)
		return
	}
	if cmd.Private {
		d.reply(ctx, cmd, textGroupOnly)
		return
	}

	switch cmd.Name {
	case "play":
		d.handlePlay(ctx, cmd, logger)
	case "pause":
		d.handleControl(ctx, cmd, logger, d.Orch.Pause, textPaused)
	case "resume":
		d.handleControl(ctx, cmd, logger, d.Orch.Resume, textResumed)
	case "stop":
		d.handleControl(ctx, cmd, logger, d.Orch.Stop, textStopped)
	}
}

func (d *Dispatcher) handlePlay(ctx context.Context, cmd Command, logger zerolog.Logger) {
	link := strings.TrimSpace(cmd.Args)
	if link == "" {
		d.reply(ctx, cmd, textPlayUsage)
		return
	}

	ref, err := d.Chat.SendReply(ctx, cmd.Room, cmd.MessageID, textProcessing)
	haveRef := err == nil
	if err != nil {
		logger.Warn().Err(err).Msg("progress message not sent")
	}

	progress := func(s domain.State) {
		text, ok := progressText[s]
		if !ok || !haveRef {
			return
		}
		if err := d.Chat.EditMessage(ctx, ref, text); err != nil {
			logger.Debug().Err(err).Stringer("state", s).Msg("progress edit failed")
		}
	}

	snap, err := d.Orch.Play(ctx, cmd.Room, link, progress)
	if err != nil {
		logger.Warn().Err(err).Msg("play failed")
		d.finish(ctx, cmd, ref, haveRef, renderError(err))
		return
	}
	logger.Info().Str("title", snap.Title).Msg("streaming")
	d.finish(ctx, cmd, ref, haveRef, playingText(snap.Title))
}

func (d *Dispatcher) handleControl(
	ctx context.Context,
	cmd Command,
	logger zerolog.Logger,
	op func(context.Context, domain.RoomID) (domain.SessionSnapshot, error),
	okText string,
) {
	if _, err := op(ctx, cmd.Room); err != nil {
		logger.Warn().Err(err).Msg("command failed")
		d.reply(ctx, cmd, renderError(err))
		return
	}
	d.reply(ctx, cmd, okText)
}

// finish overwrites the progress message, or replies fresh if there is none.
func (d *Dispatcher) finish(ctx context.Context, cmd Command, ref core.MessageRef, haveRef bool, text string) {
	ctx, cancel := replyContext(ctx)
	defer cancel()
	if haveRef {
		if err := d.Chat.EditMessage(ctx, ref, text); err == nil {
			return
		}
	}
	d.reply(ctx, cmd, text)
}

func (d *Dispatcher) reply(ctx context.Context, cmd Command, text string) {
	ctx, cancel := replyContext(ctx)
	defer cancel()
	if _, err := d.Chat.SendReply(ctx, cmd.Room, cmd.MessageID, text); err != nil {
		log.Error().Err(err).Str("module", "dispatch").Stringer("room", cmd.Room).Msgf("reply to /%s failed", cmd.Name)
	}
}

// replyContext keeps the answer deliverable after shutdown cancelled ctx.
func replyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
}
