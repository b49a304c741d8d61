package models

// Profile holds the display metadata of a user.
type Profile struct {
	UserID      int    `db:"user_id" json:"id"`
	DisplayName string `db:"display_name" json:"display_name"`
	AvatarURL   string `db:"avatar_url" json:"avatar_url,omitempty"`
}
