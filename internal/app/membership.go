package app

import (
	"context"
	"time"

	"github.com/dkeye/VoiceBot/internal/core"
	"github.com/dkeye/VoiceBot/internal/domain"
	"github.com/rs/zerolog/log"
)

// MembershipManager makes sure the assistant identity sits in a room before
// anything touches the room's call.
type MembershipManager struct {
	Chat      core.MembershipSource
	Joiner    core.InviteJoiner
	Assistant domain.Identity
	Timeout   time.Duration
}

func NewMembershipManager(chat core.MembershipSource, joiner core.InviteJoiner, assistant domain.Identity, timeout time.Duration) *MembershipManager {
	return &MembershipManager{Chat: chat, Joiner: joiner, Assistant: assistant, Timeout: timeout}
}

// EnsureMember queries membership and falls back to invite+join. It never
// retries; every failure comes back as *core.JoinError.
func (m *MembershipManager) EnsureMember(ctx context.Context, room domain.RoomID) error {
	ctx, cancel := WithStageTimeout(ctx, m.Timeout)
	defer cancel()

	logger := log.With().Str("module", "app.membership").Stringer("room", room).Logger()

	status, err := m.Chat.GetMembership(ctx, room, m.Assistant)
	if err != nil {
		return &core.JoinError{Room: room, Step: "query", Err: err}
	}
	if status.Present() {
		logger.Debug().Str("status", string(status)).Msg("assistant already in room")
		return nil
	}

	link, err := m.Chat.ExportInviteLink(ctx, room)
	if err != nil {
		return &core.JoinError{Room: room, Step: "invite", Err: err}
	}
	if err := m.Joiner.JoinByInvite(ctx, link); err != nil {
		return &core.JoinError{Room: room, Step: "join", Err: err}
	}
	logger.Info().Str("was", string(status)).Msg("assistant joined room")
	return nil
}
