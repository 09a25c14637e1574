package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/vidsync/vidsync/internal/protocol"
)

// ErrNotConnected is returned by Send* helpers while the socket is down.
var ErrNotConnected = errors.New("not connected")

// Status is the connection lifecycle state surfaced to the UI.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	// StatusDisconnected is terminal: the retry budget is exhausted and no
	// further attempts will be made.
	StatusDisconnected
)

// ConnConfig holds client connection tunables.
type ConnConfig struct {
	URL string
	// BaseDelay seeds the reconnect backoff: baseDelay * 2^(attempt-1)
	// plus jitter, capped by MaxAttempts.
	BaseDelay        time.Duration
	MaxAttempts      int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// DefaultConnConfig returns the default connection configuration for the
// given server URL.
func DefaultConnConfig(url string) ConnConfig {
	return ConnConfig{
		URL:              url,
		BaseDelay:        time.Second,
		MaxAttempts:      6,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// Handlers are the callbacks a Conn invokes from its read loop.
type Handlers struct {
	// OnConnected fires after each successful (re)connect, once the
	// server's CONNECTED frame may be expected.
	OnConnected func()
	OnMessage   func(*protocol.ServerMessage)
	OnStatus    func(Status)
}

// Conn is the client's connection to the sync gateway, with automatic
// reconnection.
type Conn struct {
	cfg      ConnConfig
	handlers Handlers
	clock    clockwork.Clock
	dialer   *websocket.Dialer
	jitter   func(max time.Duration) time.Duration

	mu sync.Mutex
	ws *websocket.Conn
}

// NewConn creates a connection manager. It does nothing until Run is called.
func NewConn(cfg ConnConfig, clock clockwork.Clock, handlers Handlers) *Conn {
	return &Conn{
		cfg:      cfg,
		handlers: handlers,
		clock:    clock,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

// Run dials and services the connection until the context is cancelled or
// the retry budget runs out, at which point StatusDisconnected is surfaced
// and Run returns.
func (c *Conn) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		c.status(StatusConnecting)

		ws, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			attempt++
			if attempt >= c.cfg.MaxAttempts {
				log.Error().Err(err).Int("attempts", attempt).Msg("reconnect budget exhausted")
				c.status(StatusDisconnected)
				return
			}
			delay := BackoffDelay(c.cfg.BaseDelay, attempt, c.jitter)
			log.Warn().
				Err(err).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("dial failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-c.clock.After(delay):
			}
			continue
		}

		attempt = 0
		c.setWS(ws)
		c.status(StatusConnected)
		if c.handlers.OnConnected != nil {
			c.handlers.OnConnected()
		}

		c.readLoop(ctx, ws)
		c.setWS(nil)
		// Loop back around; a failed redial re-enters the backoff
		// schedule from attempt 1.
	}
}

// BackoffDelay computes the reconnect delay for one attempt (1-based):
// base * 2^(attempt-1) plus up to one base interval of jitter.
func BackoffDelay(base time.Duration, attempt int, jitter func(time.Duration) time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base << (attempt - 1)
	if jitter != nil {
		delay += jitter(base)
	}
	return delay
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) {
	defer ws.Close()
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("connection lost")
			return
		}
		msg, err := protocol.DecodeServerMessage(data)
		if err != nil {
			log.Error().Err(err).Msg("bad server frame")
			continue
		}
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(msg)
		}
	}
}

func (c *Conn) setWS(ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
}

func (c *Conn) send(msg *protocol.ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// SendJoin requests membership of a room.
func (c *Conn) SendJoin(roomID, userID, username string) error {
	return c.send(&protocol.ClientMessage{
		Type:     protocol.TypeJoinRoom,
		RoomID:   roomID,
		UserID:   userID,
		Username: username,
	})
}

// SendLeave leaves a room.
func (c *Conn) SendLeave(roomID string) error {
	return c.send(&protocol.ClientMessage{Type: protocol.TypeLeaveRoom, RoomID: roomID})
}

// SendEvent relays a video event to the room.
func (c *Conn) SendEvent(roomID string, ev protocol.VideoEvent) error {
	return c.send(&protocol.ClientMessage{
		Type:   protocol.TypeVideoEvent,
		RoomID: roomID,
		Event:  &ev,
	})
}

// SendState relays a full playback snapshot to the room.
func (c *Conn) SendState(roomID string, st protocol.VideoState) error {
	return c.send(&protocol.ClientMessage{
		Type:   protocol.TypeSyncState,
		RoomID: roomID,
		State:  &st,
	})
}

// SendHostURL publishes the host's current page URL.
func (c *Conn) SendHostURL(roomID, url string) error {
	return c.send(&protocol.ClientMessage{
		Type:   protocol.TypeUpdateHostURL,
		RoomID: roomID,
		URL:    url,
	})
}

func (c *Conn) status(s Status) {
	if c.handlers.OnStatus != nil {
		c.handlers.OnStatus(s)
	}
}
