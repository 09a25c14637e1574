package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vidsync/vidsync/internal/protocol"
	"github.com/vidsync/vidsync/internal/rooms"
)

// Gateway accepts WebSocket connections, runs the room session protocol over
// them, and relays sync traffic between members of a room.
type Gateway struct {
	registry *rooms.Registry
	config   ConnectionConfig
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*Connection

	// bridge is nil in single-instance deployments.
	bridge *Bridge
}

// New creates a gateway over the given registry.
func New(registry *rooms.Registry, config ConnectionConfig) *Gateway {
	return &Gateway{
		registry: registry,
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		conns: make(map[string]*Connection),
	}
}

// SetBridge attaches a cross-instance relay bridge. Must be called before
// the gateway starts accepting connections.
func (gw *Gateway) SetBridge(b *Bridge) {
	gw.bridge = b
}

// HandleWS upgrades an HTTP request to a WebSocket session. The first frame
// on every accepted socket is CONNECTED, queued before the pumps start so no
// room action can race connection establishment on the client.
func (gw *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := gw.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	conn := &Connection{
		sess: &rooms.Session{ID: uuid.New().String()},
		ws:   ws,
		send: make(chan []byte, gw.config.SendBufferSize),
		gw:   gw,
	}
	conn.sess.Sender = conn

	gw.mu.Lock()
	gw.conns[conn.sess.ID] = conn
	gw.mu.Unlock()

	_ = conn.Send(&protocol.ServerMessage{Type: protocol.TypeConnected})

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("session_id", conn.sess.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")
}

// disconnect tears down a connection and performs the implicit leave of its
// current room. No ROOM_LEFT is sent; the channel is gone.
func (gw *Gateway) disconnect(c *Connection) {
	gw.mu.Lock()
	if _, ok := gw.conns[c.sess.ID]; !ok {
		gw.mu.Unlock()
		return
	}
	delete(gw.conns, c.sess.ID)
	gw.mu.Unlock()

	if left := gw.registry.Drop(c.sess); left != nil && !left.Deleted {
		gw.broadcast(left.RoomID, &protocol.ServerMessage{
			Type:      protocol.TypePeerLeft,
			PeerCount: left.PeerCount,
			Users:     left.Users,
		}, "")
	}
	c.close()

	log.Info().Str("session_id", c.sess.ID).Msg("connection closed")
}

// broadcast fans a message out to every session in a room except the one
// named by exclude. A failed delivery to one member never aborts delivery to
// the rest. Local broadcasts are also forwarded over the bridge when one is
// attached.
func (gw *Gateway) broadcast(roomID string, msg *protocol.ServerMessage, exclude string) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal broadcast message")
		return
	}
	gw.broadcastRaw(roomID, data, exclude)

	if gw.bridge != nil {
		gw.bridge.Publish(roomID, data)
	}
}

// broadcastRaw delivers a pre-marshaled frame to the room's local members.
func (gw *Gateway) broadcastRaw(roomID string, data []byte, exclude string) {
	delivered := 0
	for _, sess := range gw.registry.Members(roomID) {
		if sess.ID == exclude {
			continue
		}
		conn, ok := gw.connection(sess.ID)
		if !ok {
			continue
		}
		if err := conn.enqueue(data); err != nil {
			log.Warn().
				Err(err).
				Str("session_id", sess.ID).
				Str("room_id", roomID).
				Msg("failed to enqueue frame, closing connection")
			go gw.disconnect(conn)
			continue
		}
		delivered++
	}
	log.Debug().
		Str("room_id", roomID).
		Int("delivered", delivered).
		Msg("broadcast delivered")
}

func (gw *Gateway) connection(sessionID string) (*Connection, bool) {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	c, ok := gw.conns[sessionID]
	return c, ok
}

// ConnectionCount returns the number of open WebSocket sessions.
func (gw *Gateway) ConnectionCount() int {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return len(gw.conns)
}

// HandleStats serves liveness plus room/connection counts.
func (gw *Gateway) HandleStats(w http.ResponseWriter, _ *http.Request) {
	roomCount, memberCount := gw.registry.Counts()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"connections":%d,"rooms":%d,"members":%d}`,
		gw.ConnectionCount(), roomCount, memberCount)
}
