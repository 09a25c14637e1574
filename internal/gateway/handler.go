package gateway

import (
	"github.com/rs/zerolog/log"

	"github.com/vidsync/vidsync/internal/protocol"
)

// handleMessage dispatches one inbound frame. Every failure path reports an
// ERROR back to the sender only; the connection stays up and room state is
// untouched.
func (gw *Gateway) handleMessage(c *Connection, data []byte) {
	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		gw.sendError(c, protocol.ErrUnknownType)
		return
	}

	switch msg.Type {
	case protocol.TypeJoinRoom:
		gw.handleJoin(c, msg)
	case protocol.TypeLeaveRoom:
		gw.handleLeave(c, msg)
	case protocol.TypeVideoEvent, protocol.TypeSyncState:
		gw.handleRelay(c, msg)
	case protocol.TypeUpdateHostURL:
		gw.handleHostURL(c, msg)
	default:
		log.Debug().
			Str("session_id", c.sess.ID).
			Str("type", string(msg.Type)).
			Msg("unknown message type")
		gw.sendError(c, protocol.ErrUnknownType)
	}
}

func (gw *Gateway) handleJoin(c *Connection, msg *protocol.ClientMessage) {
	if msg.RoomID == "" {
		gw.sendError(c, protocol.ErrMissingField)
		return
	}

	res, err := gw.registry.Join(c.sess, msg.RoomID, msg.UserID, msg.Username)
	if err != nil {
		gw.sendError(c, err)
		return
	}

	// The implicit leave of a previous room is announced there like any
	// other departure.
	if res.LeftRoom != nil && !res.LeftRoom.Deleted {
		gw.broadcast(res.LeftRoom.RoomID, &protocol.ServerMessage{
			Type:      protocol.TypePeerLeft,
			PeerCount: res.LeftRoom.PeerCount,
			Users:     res.LeftRoom.Users,
		}, c.sess.ID)
	}

	_ = c.Send(&protocol.ServerMessage{
		Type:      protocol.TypeRoomJoined,
		RoomID:    res.RoomID,
		PeerCount: res.PeerCount,
		IsHost:    res.IsHost,
		HostURL:   res.HostURL,
		Users:     res.Users,
	})

	if res.Rejoin {
		gw.broadcast(res.RoomID, &protocol.ServerMessage{
			Type:  protocol.TypeUsersUpdate,
			Users: res.Users,
		}, c.sess.ID)
		return
	}
	gw.broadcast(res.RoomID, &protocol.ServerMessage{
		Type:      protocol.TypePeerJoined,
		PeerCount: res.PeerCount,
		Users:     res.Users,
	}, c.sess.ID)
}

func (gw *Gateway) handleLeave(c *Connection, msg *protocol.ClientMessage) {
	if msg.RoomID == "" {
		gw.sendError(c, protocol.ErrMissingField)
		return
	}

	res, err := gw.registry.Leave(c.sess, msg.RoomID)
	if err != nil {
		gw.sendError(c, err)
		return
	}

	_ = c.Send(&protocol.ServerMessage{
		Type:   protocol.TypeRoomLeft,
		RoomID: res.RoomID,
	})

	if !res.Deleted {
		gw.broadcast(res.RoomID, &protocol.ServerMessage{
			Type:      protocol.TypePeerLeft,
			PeerCount: res.PeerCount,
			Users:     res.Users,
		}, c.sess.ID)
	}
}

// handleRelay fans a video event or state snapshot out to the rest of the
// sender's room. The payload is relayed verbatim; the gateway is agnostic to
// its semantics.
func (gw *Gateway) handleRelay(c *Connection, msg *protocol.ClientMessage) {
	if msg.RoomID == "" {
		gw.sendError(c, protocol.ErrMissingField)
		return
	}
	canonical, err := protocol.NormalizeRoomID(msg.RoomID)
	if err != nil {
		gw.sendError(c, err)
		return
	}
	if c.sess.RoomID != canonical {
		gw.sendError(c, protocol.ErrNotInRoom)
		return
	}

	out := &protocol.ServerMessage{Type: msg.Type}
	switch msg.Type {
	case protocol.TypeVideoEvent:
		if msg.Event == nil {
			gw.sendError(c, protocol.ErrMissingField)
			return
		}
		out.Event = msg.Event
	case protocol.TypeSyncState:
		if msg.State == nil {
			gw.sendError(c, protocol.ErrMissingField)
			return
		}
		out.State = msg.State
	}
	gw.broadcast(canonical, out, c.sess.ID)
}

func (gw *Gateway) handleHostURL(c *Connection, msg *protocol.ClientMessage) {
	if msg.RoomID == "" || msg.URL == "" {
		gw.sendError(c, protocol.ErrMissingField)
		return
	}

	if err := gw.registry.SetHostURL(c.sess, msg.RoomID, msg.URL); err != nil {
		gw.sendError(c, err)
		return
	}
	gw.broadcast(c.sess.RoomID, &protocol.ServerMessage{
		Type: protocol.TypeHostURLUpdated,
		URL:  msg.URL,
	}, c.sess.ID)
}

func (gw *Gateway) sendError(c *Connection, err error) {
	log.Debug().
		Err(err).
		Str("session_id", c.sess.ID).
		Msg("protocol error")
	_ = c.Send(&protocol.ServerMessage{
		Type:  protocol.TypeError,
		Error: err.Error(),
	})
}
