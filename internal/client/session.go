package client

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/vidsync/vidsync/internal/protocol"
)

// SessionConfig configures one client session.
type SessionConfig struct {
	Conn       ConnConfig
	Reconciler ReconcilerConfig
	AdGate     AdGateConfig
	// RoomID is the room to join on connect (and rejoin on reconnect).
	RoomID      string
	DisplayName string
}

// RoomInfo is the membership view surfaced to the UI after each change.
type RoomInfo struct {
	RoomID    string
	IsHost    bool
	PeerCount int
	Users     []protocol.User
}

// SessionCallbacks are the UI-facing notifications. All are optional.
type SessionCallbacks struct {
	OnRoom   func(RoomInfo)
	OnStatus func(Status)
	OnError  func(message string)
}

// Session ties together the connection, reconciler, ad gate, host URL
// follower, and identity persistence for one participant.
type Session struct {
	conn  *Conn
	rec   *Reconciler
	gate  *AdGate
	store *IdentityStore
	nav   Navigator
	clock clockwork.Clock
	cfg   SessionConfig
	cb    SessionCallbacks

	mu       sync.Mutex
	identity Identity
	roomID   string
	isHost   bool
	lastURL  string
}

// NewSession builds a session. oracle, overlay, nav, and callbacks may have
// zero values when the embedding has no use for them.
func NewSession(cfg SessionConfig, store *IdentityStore, oracle AdOracle, overlay Overlay, nav Navigator, clock clockwork.Clock, cb SessionCallbacks) (*Session, error) {
	identity, err := store.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DisplayName != "" {
		identity.DisplayName = cfg.DisplayName
	}

	s := &Session{
		store:    store,
		nav:      nav,
		clock:    clock,
		cfg:      cfg,
		cb:       cb,
		identity: identity,
		roomID:   cfg.RoomID,
	}

	s.rec = NewReconciler(cfg.Reconciler, clock, s.emitAnnotated)
	s.gate = NewAdGate(s.rec, oracle, overlay, clock, cfg.AdGate, s.emitRaw)
	s.conn = NewConn(cfg.Conn, clock, Handlers{
		OnConnected: s.onConnected,
		OnMessage:   s.onMessage,
		OnStatus: func(st Status) {
			if cb.OnStatus != nil {
				cb.OnStatus(st)
			}
		},
	})
	return s, nil
}

// Run services the connection and the ad-poll loop until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	go s.gate.Run(ctx)
	s.conn.Run(ctx)
}

// Reconciler exposes the session's reconciler for player attachment and
// local event wiring.
func (s *Session) Reconciler() *Reconciler { return s.rec }

// AttachPlayer binds a newly discovered player to the session.
func (s *Session) AttachPlayer(p Player) { s.rec.Attach(p) }

// DetachPlayer unbinds the current player.
func (s *Session) DetachPlayer() { s.rec.Detach() }

// PublishHostURL pushes the host's current page URL to the room. The server
// rejects it unless this session is the room's host.
func (s *Session) PublishHostURL(url string) error {
	s.mu.Lock()
	roomID := s.roomID
	s.lastURL = url
	s.mu.Unlock()
	return s.conn.SendHostURL(roomID, url)
}

// emitAnnotated is the reconciler's outbound sink: ordinary events carry the
// current local ad state so peers can apply the consensus gate.
func (s *Session) emitAnnotated(ev protocol.VideoEvent) {
	ev.IsWatchingAd = protocol.Bool(s.gate.LocalAd())
	s.emitRaw(ev)
}

// emitRaw sends an event as-is (the ad gate sets its own ad flag).
func (s *Session) emitRaw(ev protocol.VideoEvent) {
	s.mu.Lock()
	roomID := s.roomID
	s.mu.Unlock()
	if roomID == "" {
		return
	}
	if err := s.conn.SendEvent(roomID, ev); err != nil {
		log.Warn().Err(err).Str("event_type", string(ev.EventType)).Msg("failed to send video event")
	}
}

// onConnected (re)joins the configured room after every successful dial.
func (s *Session) onConnected() {
	s.mu.Lock()
	roomID := s.roomID
	userID := s.identity.UserID
	name := s.identity.DisplayName
	s.mu.Unlock()

	if roomID == "" {
		return
	}
	if err := s.conn.SendJoin(roomID, userID, name); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("failed to send join")
	}
}

func (s *Session) onMessage(msg *protocol.ServerMessage) {
	switch msg.Type {
	case protocol.TypeConnected:
		// Ready acknowledgment; the join is driven by onConnected.
	case protocol.TypeRoomJoined:
		s.handleRoomJoined(msg)
	case protocol.TypePeerJoined, protocol.TypePeerLeft, protocol.TypeUsersUpdate:
		s.notifyRoom(msg)
	case protocol.TypeRoomLeft:
		s.mu.Lock()
		s.roomID = ""
		s.isHost = false
		s.mu.Unlock()
	case protocol.TypeVideoEvent:
		if msg.Event != nil {
			s.gate.HandleEvent(msg.Event)
		}
	case protocol.TypeSyncState:
		if msg.State != nil {
			s.gate.HandleState(msg.State)
		}
	case protocol.TypeHostURLUpdated:
		s.followHostURL(msg.URL)
	case protocol.TypeError:
		log.Warn().Str("error", msg.Error).Msg("server reported protocol error")
		if s.cb.OnError != nil {
			s.cb.OnError(msg.Error)
		}
	default:
		log.Debug().Str("type", string(msg.Type)).Msg("ignoring unknown server message")
	}
}

func (s *Session) handleRoomJoined(msg *protocol.ServerMessage) {
	s.mu.Lock()
	s.roomID = msg.RoomID
	s.isHost = msg.IsHost
	s.identity.LastRoom = msg.RoomID
	identity := s.identity
	isHost := msg.IsHost
	s.mu.Unlock()

	if err := s.store.Save(identity); err != nil {
		log.Warn().Err(err).Msg("failed to persist identity")
	}

	log.Info().
		Str("room_id", msg.RoomID).
		Bool("is_host", msg.IsHost).
		Int("peer_count", msg.PeerCount).
		Msg("joined room")

	// Non-hosts follow the room's last known host URL.
	if !isHost && msg.HostURL != "" {
		s.followHostURL(msg.HostURL)
	}
	s.notifyRoom(msg)
}

// followHostURL navigates to a newly published host URL, skipping addresses
// already visited so rebroadcasts do not trigger redundant navigation.
func (s *Session) followHostURL(url string) {
	if url == "" {
		return
	}
	s.mu.Lock()
	if s.isHost || url == s.lastURL {
		s.mu.Unlock()
		return
	}
	s.lastURL = url
	s.mu.Unlock()

	if s.nav == nil {
		return
	}
	if err := s.nav.Navigate(url); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("navigation failed")
	}
}

func (s *Session) notifyRoom(msg *protocol.ServerMessage) {
	if s.cb.OnRoom == nil {
		return
	}
	s.mu.Lock()
	info := RoomInfo{
		RoomID:    s.roomID,
		IsHost:    s.isHost,
		PeerCount: msg.PeerCount,
		Users:     msg.Users,
	}
	s.mu.Unlock()
	s.cb.OnRoom(info)
}
