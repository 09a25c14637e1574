package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vidsync/vidsync/internal/protocol"
	"github.com/vidsync/vidsync/internal/rooms"
)

// ErrSlowConsumer is returned when a session's send buffer is full. The
// gateway closes such connections rather than letting one slow reader stall
// a room broadcast.
var ErrSlowConsumer = errors.New("connection send buffer full")

// ErrConnClosed is returned when a frame is enqueued on a connection that has
// already been torn down.
var ErrConnClosed = errors.New("connection closed")

// ConnectionConfig holds tunables for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins; restrict in production deployments.
			return true
		},
	}
}

// Connection is one client's WebSocket plus its registry session. It
// implements rooms.Sender so the registry layer never touches the socket
// directly.
type Connection struct {
	sess *rooms.Session
	ws   *websocket.Conn
	send chan []byte
	gw   *Gateway

	// mu guards closed so a broadcast racing a disconnect can never send on
	// the closed channel.
	mu     sync.Mutex
	closed bool
}

// Send marshals a server message and queues it for delivery. A full buffer
// fails this one delivery only.
func (c *Connection) Send(msg *protocol.ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Connection) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.send)
	_ = c.ws.Close()
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.gw.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.gw.config.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().
					Err(err).
					Str("session_id", c.sess.ID).
					Msg("failed to write message to WebSocket")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.gw.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames and hands them to the message handler. When the read
// loop exits for any reason the session is treated as disconnected.
func (c *Connection) readPump() {
	defer c.gw.disconnect(c)

	c.ws.SetReadLimit(c.gw.config.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.gw.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.gw.config.ReadTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("session_id", c.sess.ID).
					Msg("unexpected WebSocket close")
			}
			return
		}
		c.gw.handleMessage(c, data)
		_ = c.ws.SetReadDeadline(time.Now().Add(c.gw.config.ReadTimeout))
	}
}
