package models

import "time"

// RoomKind distinguishes pairwise rooms from group rooms.
type RoomKind string

const (
	RoomPrivate RoomKind = "private"
	RoomGroup   RoomKind = "group"
)

// Room is a logical conversation channel.
type Room struct {
	ID           string    `db:"id" json:"id"`
	Kind         RoomKind  `db:"kind" json:"kind"`
	Participants []int     `db:"-" json:"participants"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether userID belongs to the room.
func (r Room) HasParticipant(userID int) bool {
	for _, id := range r.Participants {
		if id == userID {
			return true
		}
	}
	return false
}
