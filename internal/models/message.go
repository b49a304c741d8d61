package models

import "time"

// Message represents a persisted room message.
type Message struct {
	ID          int       `db:"id" json:"id"`
	RoomID      string    `db:"room_id" json:"room_id"`
	AuthorID    int       `db:"author_id" json:"author_id"`
	Body        string    `db:"body" json:"body"`
	ClientNonce string    `db:"client_nonce" json:"client_nonce,omitempty"`
	SentAt      time.Time `db:"sent_at" json:"sent_at"`
	Author      *Author   `db:"-" json:"author,omitempty"`
}

// Author is display metadata embedded in message payloads when known.
type Author struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Event types exchanged over the websocket transport.
const (
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventError          = "error"
)

// RoomEvent is the websocket wire envelope in both directions.
type RoomEvent struct {
	Type    string   `json:"type"`
	RoomID  string   `json:"room_id,omitempty"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}
