package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/VoiceBot/internal/core"
	"github.com/dkeye/VoiceBot/internal/domain"
)

type fakeMembership struct {
	status    domain.MemberStatus
	queryErr  error
	inviteErr error
	queries   int
	invites   int
	block     bool
}

func (f *fakeMembership) GetMembership(ctx context.Context, _ domain.RoomID, _ domain.Identity) (domain.MemberStatus, error) {
	f.queries++
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.status, f.queryErr
}

func (f *fakeMembership) ExportInviteLink(context.Context, domain.RoomID) (string, error) {
	f.invites++
	return "https://t.me/+invite", f.inviteErr
}

type fakeJoiner struct {
	links []string
	err   error
}

func (f *fakeJoiner) JoinByInvite(_ context.Context, link string) error {
	f.links = append(f.links, link)
	return f.err
}

func TestEnsureMember(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		chat      *fakeMembership
		joinErr   error
		wantStep  string
		wantJoins int
	}{
		{name: "already member", chat: &fakeMembership{status: domain.MemberMember}},
		{name: "admin", chat: &fakeMembership{status: domain.MemberAdministrator}},
		{name: "left then joins", chat: &fakeMembership{status: domain.MemberLeft}, wantJoins: 1},
		{name: "query fails", chat: &fakeMembership{queryErr: boom}, wantStep: "query"},
		{name: "invite fails", chat: &fakeMembership{status: domain.MemberLeft, inviteErr: boom}, wantStep: "invite"},
		{name: "join fails", chat: &fakeMembership{status: domain.MemberKicked}, joinErr: boom, wantStep: "join", wantJoins: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			joiner := &fakeJoiner{err: tt.joinErr}
			m := NewMembershipManager(tt.chat, joiner, domain.Identity{ID: 99}, time.Second)

			err := m.EnsureMember(context.Background(), -1)

			if tt.wantStep == "" {
				if err != nil {
					t.Fatalf("EnsureMember: %v", err)
				}
			} else {
				var je *core.JoinError
				if !errors.As(err, &je) {
					t.Fatalf("err = %v, want *JoinError", err)
				}
				if je.Step != tt.wantStep {
					t.Errorf("Step = %q, want %q", je.Step, tt.wantStep)
				}
			}
			if len(joiner.links) != tt.wantJoins {
				t.Errorf("joins = %d, want %d", len(joiner.links), tt.wantJoins)
			}
			if tt.chat.queries != 1 {
				t.Errorf("queries = %d, want exactly 1 (no retries)", tt.chat.queries)
			}
		})
	}
}

func TestEnsureMemberTimeoutIsJoinError(t *testing.T) {
	m := NewMembershipManager(&fakeMembership{block: true}, &fakeJoiner{}, domain.Identity{ID: 1}, 10*time.Millisecond)
	err := m.EnsureMember(context.Background(), 1)
	var je *core.JoinError
	if !errors.As(err, &je) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want JoinError wrapping deadline", err)
	}
}
