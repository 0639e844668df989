package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceBot/internal/app/dispatch"
	"github.com/dkeye/VoiceBot/internal/domain"
)

// UpdateSource is the long-polling half of *tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Handler interface {
	Handle(ctx context.Context, cmd dispatch.Command)
}

// Poller receives updates and hands every command to its own goroutine, so
// a slow play in one chat never holds up another chat.
type Poller struct {
	Source      UpdateSource
	Handler     Handler
	PollTimeout int
	Workers     int
	Drain       time.Duration
}

// Run polls until ctx ends, then waits up to Drain for in-flight commands.
func (p *Poller) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.PollTimeout
	updates := p.Source.GetUpdatesChan(u)

	workers := p.Workers
	if workers <= 0 {
		workers = 64
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	log.Info().Str("module", "adapters.telegram").Msg("polling updates")
	defer p.drain(&wg)

	for {
		select {
		case <-ctx.Done():
			p.Source.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			cmd, ok := CommandFromUpdate(upd)
			if !ok {
				continue
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				p.Source.StopReceivingUpdates()
				return nil
			}
			wg.Add(1)
			go func() {
				defer func() {
					<-sem
					wg.Done()
				}()
				p.Handler.Handle(ctx, cmd)
			}()
		}
	}
}

func (p *Poller) drain(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	if p.Drain <= 0 {
		<-done
		return
	}
	select {
	case <-done:
	case <-time.After(p.Drain):
		log.Warn().Str("module", "adapters.telegram").Dur("drain", p.Drain).Msg("commands still running after drain timeout")
	}
}

// CommandFromUpdate extracts a bot command from a message update.
func CommandFromUpdate(upd tgbotapi.Update) (dispatch.Command, bool) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return dispatch.Command{}, false
	}
	cmd := dispatch.Command{
		Room:      domain.RoomID(msg.Chat.ID),
		Private:   msg.Chat.IsPrivate(),
		MessageID: domain.MessageID(msg.MessageID),
		Name:      strings.ToLower(msg.Command()),
		Args:      strings.TrimSpace(msg.CommandArguments()),
	}
	if msg.From != nil {
		cmd.User = domain.UserID(msg.From.ID)
	}
	return cmd, true
}
