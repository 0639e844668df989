package core

import (
	"context"

	"github.com/dkeye/VoiceBot/internal/domain"
)

// MessageRef points at a message the bot already sent, so it can be edited.
type MessageRef struct {
	Room domain.RoomID
	ID   domain.MessageID
}

// ChatClient delivers user-visible text through the primary identity.
type ChatClient interface {
	SendReply(ctx context.Context, room domain.RoomID, replyTo domain.MessageID, text string) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, text string) error
}

// MembershipSource answers membership queries and exports invite links.
// Both calls run as the primary identity.
type MembershipSource interface {
	GetMembership(ctx context.Context, room domain.RoomID, who domain.Identity) (domain.MemberStatus, error)
	ExportInviteLink(ctx context.Context, room domain.RoomID) (string, error)
}

// InviteJoiner makes the assistant identity join a room by invite link.
type InviteJoiner interface {
	JoinByInvite(ctx context.Context, link string) error
}

// CallEngine abstracts the real-time transport into a room's call.
// Owned by the adapter; the engine keeps one stream per room.
type CallEngine interface {
	Play(ctx context.Context, room domain.RoomID, source string, q domain.Quality) error
	Pause(ctx context.Context, room domain.RoomID) error
	Resume(ctx context.Context, room domain.RoomID) error
	Leave(ctx context.Context, room domain.RoomID) error
}

// Resolver turns a link into a playable source. dir is empty unless the
// policy asks for a local file, in which case the file must land inside dir.
type Resolver interface {
	Resolve(ctx context.Context, link string, policy domain.ResolvePolicy, dir string) (domain.ResolvedMedia, error)
}

// ArtifactStore hands out per-session directories for downloaded media.
// Release only ever removes the directory of the given (room, generation).
type ArtifactStore interface {
	Dir(room domain.RoomID, generation uint64) (string, error)
	Release(room domain.RoomID, generation uint64) error
}
