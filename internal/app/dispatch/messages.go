package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/VoiceBot/internal/core"
	"github.com/dkeye/VoiceBot/internal/domain"
)

const maxReasonLen = 200

const (
	textStart = "👋 Bot is working!\n\n" +
		"/play <link> — stream a video or audio link into this chat's voice chat\n" +
		"/pause — pause the stream\n" +
		"/resume — resume the stream\n" +
		"/stop — stop and leave the voice chat"
	textPlayUsage   = "❌ Usage: /play <link>"
	textGroupOnly   = "❌ This command only works in a group with a voice chat."
	textProcessing  = "⏳ Processing..."
	textPaused      = "⏸ Paused."
	textResumed     = "▶️ Resumed."
	textStopped     = "⏹ Stopped."
	textSlowDown    = "⏳ Too many commands, slow down a bit."
	textBusy        = "⏳ Already processing a command in this chat, try again in a moment."
	textCancelled   = "⏹ Cancelled."
	textJoinFailed  = "❌ Couldn't add the assistant to this chat. Make sure the bot is an admin with the right to invite users, then try again."
	textPlayControl = "\n\n⏸ /pause | ▶️ /resume | ⏹ /stop"
)

var progressText = map[domain.State]string{
	domain.StateJoiningAssistant: "👤 Checking the assistant is in the chat...",
	domain.StateResolvingMedia:   "🔗 Fetching stream URL...",
}

func playingText(title string) string {
	return fmt.Sprintf("🎬 Playing: %s%s", title, textPlayControl)
}

// renderError turns an orchestrator error into the one message the user sees.
func renderError(err error) string {
	var (
		joinErr    *core.JoinError
		resolveErr *core.ResolutionError
		playErr    *core.PlaybackError
		stateErr   *core.InvalidStateError
	)
	switch {
	case errors.Is(err, core.ErrBusy):
		return textBusy
	case errors.Is(err, context.Canceled):
		return textCancelled
	case errors.As(err, &stateErr):
		return renderInvalidState(stateErr)
	case errors.As(err, &joinErr):
		return textJoinFailed
	case errors.As(err, &resolveErr):
		reason := resolveErr.Reason
		if resolveErr.Err != nil {
			reason += ": " + resolveErr.Err.Error()
		}
		return "❌ Couldn't resolve the link: " + core.Truncate(reason, maxReasonLen)
	case errors.As(err, &playErr):
		cause := "unknown error"
		if playErr.Err != nil {
			cause = core.Truncate(playErr.Err.Error(), maxReasonLen)
		}
		if playErr.Op == "play" {
			return "❌ The voice chat rejected the stream: " + cause +
				"\nMake sure a voice chat is running and the assistant is allowed to speak and share video."
		}
		return fmt.Sprintf("❌ Couldn't %s: %s", playErr.Op, cause)
	default:
		return "❌ Error: " + core.Truncate(err.Error(), maxReasonLen)
	}
}

func renderInvalidState(e *core.InvalidStateError) string {
	switch {
	case e.Op == "play" && !e.State.CanPlay():
		return "⚠️ Already playing or starting in this chat. Use /stop first."
	case e.State == domain.StateIdle || e.State == domain.StateStopped || e.State == domain.StateFailed:
		return fmt.Sprintf("⚠️ Nothing to %s: the session is %s.", e.Op, e.State)
	default:
		return fmt.Sprintf("⚠️ Can't %s while %s.", e.Op, e.State)
	}
}
