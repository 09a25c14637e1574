package protocol

import (
	"encoding/json"
)

// MessageType identifies a wire message.
type MessageType string

// Client -> server message types.
const (
	TypeJoinRoom      MessageType = "JOIN_ROOM"
	TypeLeaveRoom     MessageType = "LEAVE_ROOM"
	TypeVideoEvent    MessageType = "VIDEO_EVENT"
	TypeSyncState     MessageType = "SYNC_VIDEO_STATE"
	TypeUpdateHostURL MessageType = "UPDATE_HOST_URL"
)

// Server -> client message types.
const (
	TypeConnected      MessageType = "CONNECTED"
	TypeRoomJoined     MessageType = "ROOM_JOINED"
	TypePeerJoined     MessageType = "PEER_JOINED"
	TypePeerLeft       MessageType = "PEER_LEFT"
	TypeUsersUpdate    MessageType = "USERS_UPDATE"
	TypeRoomLeft       MessageType = "ROOM_LEFT"
	TypeHostURLUpdated MessageType = "HOST_URL_UPDATED"
	TypeError          MessageType = "ERROR"
)

// EventType identifies a player event carried in a VideoEvent.
type EventType string

const (
	EventPlay       EventType = "play"
	EventPause      EventType = "pause"
	EventSeek       EventType = "seek"
	EventRateChange EventType = "ratechange"
)

// User is a room member as seen on the wire.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// VideoState is a full playback snapshot. Timestamp is the capture instant in
// Unix milliseconds and is what receivers use for latency compensation.
type VideoState struct {
	CurrentTime  float64 `json:"currentTime"`
	Paused       bool    `json:"paused"`
	PlaybackRate float64 `json:"playbackRate"`
	Timestamp    int64   `json:"timestamp"`
	IsWatchingAd *bool   `json:"isWatchingAd,omitempty"`
}

// VideoEvent is a single player event. Only the fields relevant to the event
// type are populated by the sender.
type VideoEvent struct {
	EventType    EventType `json:"eventType"`
	CurrentTime  float64   `json:"currentTime,omitempty"`
	PlaybackRate float64   `json:"playbackRate,omitempty"`
	Paused       bool      `json:"paused,omitempty"`
	Timestamp    int64     `json:"timestamp"`
	IsWatchingAd *bool     `json:"isWatchingAd,omitempty"`
}

// ClientMessage is the envelope for every client -> server frame.
type ClientMessage struct {
	Type     MessageType `json:"type"`
	RoomID   string      `json:"roomId,omitempty"`
	UserID   string      `json:"userId,omitempty"`
	Username string      `json:"username,omitempty"`
	URL      string      `json:"url,omitempty"`
	Event    *VideoEvent `json:"event,omitempty"`
	State    *VideoState `json:"state,omitempty"`
}

// ServerMessage is the envelope for every server -> client frame.
type ServerMessage struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"roomId,omitempty"`
	PeerCount int         `json:"peerCount,omitempty"`
	IsHost    bool        `json:"isHost,omitempty"`
	HostURL   string      `json:"hostUrl,omitempty"`
	Users     []User      `json:"users,omitempty"`
	URL       string      `json:"url,omitempty"`
	Event     *VideoEvent `json:"event,omitempty"`
	State     *VideoState `json:"state,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// DecodeClientMessage parses a raw frame into a ClientMessage.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, ErrUnknownType
	}
	return &msg, nil
}

// DecodeServerMessage parses a raw frame into a ServerMessage.
func DecodeServerMessage(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, ErrUnknownType
	}
	return &msg, nil
}

// Bool is a helper for the optional IsWatchingAd field.
func Bool(v bool) *bool { return &v }
