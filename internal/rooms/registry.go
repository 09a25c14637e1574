package rooms

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vidsync/vidsync/internal/protocol"
)

// Session is one connected participant as tracked by the registry. RoomID is
// empty while the session is connected but not in any room. The Sender is the
// session's outbound channel, owned by the gateway.
type Session struct {
	ID     string
	UserID string
	Name   string
	RoomID string
	IsHost bool
	Sender Sender
}

// Sender delivers a server message to one session. Implementations must not
// block indefinitely; a failed or slow delivery is isolated to that session.
type Sender interface {
	Send(msg *protocol.ServerMessage) error
}

// JoinResult is what Join reports back to the gateway so it can acknowledge
// the requester and notify the rest of the room.
type JoinResult struct {
	RoomID    string
	IsHost    bool
	Rejoin    bool
	PeerCount int
	HostURL   string
	Users     []protocol.User
	// LeftRoom is set when the session was implicitly removed from a
	// different room first; the gateway broadcasts the departure there.
	LeftRoom *LeaveResult
}

// LeaveResult describes the state of a room after a member departed.
type LeaveResult struct {
	RoomID    string
	PeerCount int
	Users     []protocol.User
	Deleted   bool
}

// Registry owns all room and membership state. Every mutation of a room's
// member set or host URL goes through it and is serialized by a single
// mutex, so no two join/leave operations on the same room interleave.
type Registry struct {
	mu    sync.Mutex
	store Store
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Join adds a session to a room, creating the room if it does not exist. The
// first member of a new room becomes host. If the session is already in a
// different room it is silently removed from that room first. If the session
// is already a member of this same room, the join is a rejoin: host flag and
// user ID are preserved and the result is flagged so the gateway broadcasts a
// membership refresh instead of a peer-joined notification.
func (reg *Registry) Join(sess *Session, roomID, userID, name string) (*JoinResult, error) {
	canonical, err := protocol.NormalizeRoomID(roomID)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	res := &JoinResult{RoomID: canonical}

	if sess.RoomID == canonical {
		res.Rejoin = true
	} else if sess.RoomID != "" {
		res.LeftRoom = reg.removeLocked(sess)
	}

	room, ok := reg.store.Room(canonical)
	if !ok {
		room = reg.store.CreateRoom(canonical)
	}

	if !res.Rejoin {
		if userID == "" {
			userID = uuid.New().String()
		}
		sess.UserID = userID
		sess.IsHost = room.MemberCount() == 0
	}
	if name != "" {
		sess.Name = name
	}
	if sess.Name == "" {
		sess.Name = "Guest"
	}
	sess.RoomID = canonical
	room.members[sess.ID] = sess

	res.IsHost = sess.IsHost
	res.PeerCount = room.MemberCount()
	res.HostURL = room.HostURL
	res.Users = usersOf(room)

	log.Info().
		Str("room_id", canonical).
		Str("session_id", sess.ID).
		Str("user_id", sess.UserID).
		Bool("is_host", sess.IsHost).
		Bool("rejoin", res.Rejoin).
		Int("peer_count", res.PeerCount).
		Msg("session joined room")

	return res, nil
}

// Leave removes a session from the named room. Returns ErrNotInRoom when the
// session is not a member of that room.
func (reg *Registry) Leave(sess *Session, roomID string) (*LeaveResult, error) {
	canonical, err := protocol.NormalizeRoomID(roomID)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if sess.RoomID != canonical {
		return nil, protocol.ErrNotInRoom
	}
	res := reg.removeLocked(sess)

	log.Info().
		Str("room_id", canonical).
		Str("session_id", sess.ID).
		Int("peer_count", res.PeerCount).
		Bool("room_deleted", res.Deleted).
		Msg("session left room")

	return res, nil
}

// Drop removes a session from whatever room it is in, if any. Used on
// disconnect, where no acknowledgment can be sent.
func (reg *Registry) Drop(sess *Session) *LeaveResult {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if sess.RoomID == "" {
		return nil
	}
	res := reg.removeLocked(sess)

	log.Info().
		Str("room_id", res.RoomID).
		Str("session_id", sess.ID).
		Bool("room_deleted", res.Deleted).
		Msg("session dropped from room")

	return res
}

// SetHostURL records the room's current host URL. Only the room's host may
// set it, and the URL must pass validation; a rejected update changes
// nothing.
func (reg *Registry) SetHostURL(sess *Session, roomID, rawURL string) error {
	canonical, err := protocol.NormalizeRoomID(roomID)
	if err != nil {
		return err
	}
	if err := protocol.ValidateHostURL(rawURL); err != nil {
		return err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if sess.RoomID != canonical {
		return protocol.ErrNotInRoom
	}
	if !sess.IsHost {
		return protocol.ErrNotHost
	}
	room, ok := reg.store.Room(canonical)
	if !ok {
		return protocol.ErrNotInRoom
	}
	room.HostURL = rawURL

	log.Info().
		Str("room_id", canonical).
		Str("session_id", sess.ID).
		Str("url", rawURL).
		Msg("host url updated")

	return nil
}

// Members returns the sessions currently in a room. The slice is a snapshot;
// callers may iterate it without holding the registry lock.
func (reg *Registry) Members(roomID string) []*Session {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.store.Room(roomID)
	if !ok {
		return nil
	}
	out := make([]*Session, 0, room.MemberCount())
	for _, s := range room.members {
		out = append(out, s)
	}
	return out
}

// Counts reports the number of rooms and total members for the stats
// endpoint.
func (reg *Registry) Counts() (roomCount, memberCount int) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	all := reg.store.Rooms()
	for _, r := range all {
		memberCount += r.MemberCount()
	}
	return len(all), memberCount
}

// removeLocked takes a session out of its current room, clearing its host
// flag and deleting the room when it empties. Caller holds the mutex.
func (reg *Registry) removeLocked(sess *Session) *LeaveResult {
	res := &LeaveResult{RoomID: sess.RoomID}
	room, ok := reg.store.Room(sess.RoomID)
	if ok {
		delete(room.members, sess.ID)
		if room.MemberCount() == 0 {
			reg.store.DeleteRoom(room.ID)
			res.Deleted = true
		} else {
			res.PeerCount = room.MemberCount()
			res.Users = usersOf(room)
		}
	}
	sess.RoomID = ""
	sess.IsHost = false
	return res
}

func usersOf(room *Room) []protocol.User {
	out := make([]protocol.User, 0, room.MemberCount())
	for _, s := range room.members {
		out = append(out, protocol.User{ID: s.UserID, Name: s.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
