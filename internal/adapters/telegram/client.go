// Package telegram runs the primary identity over the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dkeye/VoiceBot/internal/core"
	"github.com/dkeye/VoiceBot/internal/domain"
)

// BotAPI is the part of *tgbotapi.BotAPI the client uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetInviteLink(config tgbotapi.ChatInviteLinkConfig) (string, error)
}

// Client implements core.ChatClient and core.MembershipSource.
type Client struct {
	api BotAPI
}

func NewClient(api BotAPI) *Client {
	return &Client{api: api}
}

// Connect authenticates the bot token and returns the API and the bot's own identity.
func Connect(token string, debug bool) (*tgbotapi.BotAPI, domain.Identity, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, domain.Identity{}, fmt.Errorf("bot auth: %w", err)
	}
	bot.Debug = debug
	self, err := domain.NewIdentity(domain.UserID(bot.Self.ID), bot.Self.UserName)
	if err != nil {
		return nil, domain.Identity{}, fmt.Errorf("bot auth: %w", err)
	}
	return bot, self, nil
}

func (c *Client) SendReply(ctx context.Context, room domain.RoomID, replyTo domain.MessageID, text string) (core.MessageRef, error) {
	msg := tgbotapi.NewMessage(int64(room), text)
	msg.ReplyToMessageID = int(replyTo)
	msg.DisableWebPagePreview = true

	sent, err := do(ctx, func() (tgbotapi.Message, error) { return c.api.Send(msg) })
	if err != nil {
		return core.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return core.MessageRef{Room: room, ID: domain.MessageID(sent.MessageID)}, nil
}

func (c *Client) EditMessage(ctx context.Context, ref core.MessageRef, text string) error {
	edit := tgbotapi.NewEditMessageText(int64(ref.Room), int(ref.ID), text)
	edit.DisableWebPagePreview = true

	_, err := do(ctx, func() (*tgbotapi.APIResponse, error) { return c.api.Request(edit) })
	if err != nil && !isNotModified(err) {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

func (c *Client) GetMembership(ctx context.Context, room domain.RoomID, who domain.Identity) (domain.MemberStatus, error) {
	cfg := tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: int64(room), UserID: int64(who.ID)},
	}
	member, err := do(ctx, func() (tgbotapi.ChatMember, error) { return c.api.GetChatMember(cfg) })
	if err != nil {
		if isUnknownUser(err) {
			return domain.MemberLeft, nil
		}
		return "", fmt.Errorf("get chat member: %w", err)
	}
	status := domain.MemberStatus(member.Status)
	if status == domain.MemberRestricted && !member.IsMember {
		return domain.MemberLeft, nil
	}
	return status, nil
}

func (c *Client) ExportInviteLink(ctx context.Context, room domain.RoomID) (string, error) {
	cfg := tgbotapi.ChatInviteLinkConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: int64(room)}}
	link, err := do(ctx, func() (string, error) { return c.api.GetInviteLink(cfg) })
	if err != nil {
		return "", fmt.Errorf("export invite link: %w", err)
	}
	if link == "" {
		return "", errors.New("export invite link: empty link")
	}
	return link, nil
}

// do runs a blocking Bot API call but returns as soon as ctx ends. The call
// itself is bounded by the HTTP client and finishes in the background.
func do[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func apiMessage(err error) string {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return strings.ToLower(apiErr.Message)
	}
	return ""
}

func isNotModified(err error) bool {
	return strings.Contains(apiMessage(err), "message is not modified")
}

func isUnknownUser(err error) bool {
	msg := apiMessage(err)
	return strings.Contains(msg, "user not found") || strings.Contains(msg, "participant_id_invalid")
}
