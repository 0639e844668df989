// Package engine talks to the call-engine sidecar that holds the assistant
// session and the voice chat media.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceBot/internal/domain"
)

type Config struct {
	URL         string
	ReadLimit   int64
	PingPeriod  time.Duration
	Handshake   time.Duration
	Backoff     time.Duration
	Credentials Credentials
}

const writeWait = 5 * time.Second

// Client multiplexes request/response calls over one WebSocket. It implements
// core.CallEngine and core.InviteJoiner.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *conn
	pending map[string]chan response
	self    domain.Identity
	ended   func(domain.RoomID)
}

type conn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func New(cfg Config) *Client {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}
	if cfg.Handshake <= 0 {
		cfg.Handshake = 10 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	return &Client{
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		pending: make(map[string]chan response),
	}
}

// Self is the assistant identity reported by the last handshake.
func (c *Client) Self() domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// OnStreamEnded sets the handler for rooms whose stream finished or whose
// call went away without a command. It runs on its own goroutine.
func (c *Client) OnStreamEnded(fn func(room domain.RoomID)) {
	c.mu.Lock()
	c.ended = fn
	c.mu.Unlock()
}

// Connect dials the sidecar, authenticates the assistant and asks who it is.
func (c *Client) Connect(ctx context.Context) (domain.Identity, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("dial engine: %w", err)
	}
	if c.cfg.ReadLimit > 0 {
		ws.SetReadLimit(c.cfg.ReadLimit)
	}

	cn := &conn{
		ws:   ws,
		send: make(chan []byte, 32),
		done: make(chan struct{}),
	}
	c.mu.Lock()
	c.conn = cn
	c.mu.Unlock()

	go c.writePump(cn)
	go c.readPump(cn)

	hctx, cancel := context.WithTimeout(ctx, c.cfg.Handshake)
	defer cancel()

	creds := c.cfg.Credentials
	if _, err := c.call(hctx, request{Type: "auth", Credentials: &creds}); err != nil {
		cn.close()
		return domain.Identity{}, fmt.Errorf("engine auth: %w", err)
	}
	r, err := c.call(hctx, request{Type: "whoami"})
	if err != nil {
		cn.close()
		return domain.Identity{}, fmt.Errorf("engine whoami: %w", err)
	}
	self, err := domain.NewIdentity(domain.UserID(r.UserID), r.Username)
	if err != nil {
		cn.close()
		return domain.Identity{}, fmt.Errorf("engine whoami: %w", err)
	}

	c.mu.Lock()
	prev := c.self
	c.self = self
	c.mu.Unlock()
	if prev.ID != 0 && prev.ID != self.ID {
		log.Warn().Str("module", "engine").Stringer("was", prev.ID).Stringer("now", self.ID).Msg("assistant identity changed")
	}
	log.Info().Str("module", "engine").Stringer("assistant", self.ID).Str("username", self.Username).Msg("engine connected")
	return self, nil
}

// Run keeps the connection up until ctx ends, redialling after a drop.
func (c *Client) Run(ctx context.Context) error {
	for {
		if cn := c.current(); cn != nil {
			select {
			case <-ctx.Done():
				cn.close()
				return nil
			case <-cn.done:
				log.Warn().Str("module", "engine").Msg("engine connection lost")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.Backoff):
		}

		if _, err := c.Connect(ctx); err != nil {
			log.Warn().Str("module", "engine").Err(err).Msg("engine reconnect failed")
		}
	}
}

// Close drops the current connection; Run will not redial after its ctx ends.
func (c *Client) Close() {
	if cn := c.current(); cn != nil {
		cn.close()
	}
}

func (c *Client) current() *conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) Play(ctx context.Context, room domain.RoomID, source string, q domain.Quality) error {
	_, err := c.call(ctx, request{Type: "play", Room: int64(room), Source: source, Audio: q.Audio, Video: q.Video})
	return err
}

func (c *Client) Pause(ctx context.Context, room domain.RoomID) error {
	_, err := c.call(ctx, request{Type: "pause", Room: int64(room)})
	return err
}

func (c *Client) Resume(ctx context.Context, room domain.RoomID) error {
	_, err := c.call(ctx, request{Type: "resume", Room: int64(room)})
	return err
}

func (c *Client) Leave(ctx context.Context, room domain.RoomID) error {
	_, err := c.call(ctx, request{Type: "leave", Room: int64(room)})
	return err
}

func (c *Client) JoinByInvite(ctx context.Context, link string) error {
	_, err := c.call(ctx, request{Type: "join_by_invite", Link: link})
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Code == codeAlreadyParticipant {
		return nil
	}
	return err
}

func (c *Client) call(ctx context.Context, req request) (response, error) {
	req.ID = uuid.NewString()
	data, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("marshal %s: %w", req.Type, err)
	}

	ch := make(chan response, 1)
	c.mu.Lock()
	cn := c.conn
	if cn == nil {
		c.mu.Unlock()
		return response{}, ErrNotConnected
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	select {
	case cn.send <- data:
	case <-cn.done:
		return response{}, ErrDisconnected
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case r := <-ch:
		if !r.OK {
			msg := r.Error
			if msg == "" {
				msg = "request failed"
			}
			return r, &RemoteError{Op: req.Type, Code: r.Code, Message: msg}
		}
		return r, nil
	case <-cn.done:
		return response{}, ErrDisconnected
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

func (c *Client) writePump(cn *conn) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		cn.close()
	}()
	for {
		select {
		case <-cn.done:
			return
		case data := <-cn.send:
			if err := cn.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Debug().Str("module", "engine").Err(err).Msg("writePump set deadline error")
				return
			}
			if err := cn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Str("module", "engine").Err(err).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := cn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Str("module", "engine").Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (c *Client) readPump(cn *conn) {
	defer func() {
		cn.close()
		c.mu.Lock()
		if c.conn == cn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	pongWait := c.cfg.PingPeriod * 10 / 9
	_ = cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	cn.ws.SetPongHandler(func(string) error {
		return cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			select {
			case <-cn.done:
			default:
				log.Debug().Str("module", "engine").Err(err).Msg("readPump read error")
			}
			return
		}
		_ = cn.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		log.Warn().Str("module", "engine").Err(err).Msg("bad json from engine")
		return
	}
	if r.ID == "" {
		c.event(r)
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[r.ID]
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "engine").Str("id", r.ID).Msg("response for unknown request")
		return
	}
	select {
	case ch <- r:
	default:
	}
}

func (c *Client) event(r response) {
	log.Info().Str("module", "engine").Str("event", r.Type).Int64("room", r.Room).Str("error", r.Error).Msg("engine event")
	switch r.Type {
	case eventStreamEnded, eventCallClosed:
	default:
		return
	}
	c.mu.Lock()
	fn := c.ended
	c.mu.Unlock()
	if fn != nil && r.Room != 0 {
		go fn(domain.RoomID(r.Room))
	}
}
