package models

import (
	"fmt"
	"time"
)

// Group represents a community group. Its room id is derived from the group id.
type Group struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	OwnerID   int       `db:"owner_id" json:"owner_id"`
	RoomID    string    `db:"room_id" json:"room_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GroupRoomID derives the room id of a group.
func GroupRoomID(groupID int) string {
	return fmt.Sprintf("group-%d", groupID)
}
