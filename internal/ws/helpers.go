package ws

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"journey-chat/internal/models"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

func encodeEvent(event models.RoomEvent) ([]byte, error) {
	return json.Marshal(event)
}

// BodyRule is the validator tag applied to message bodies.
func BodyRule(maxBody int) string {
	return fmt.Sprintf("required,max=%d", maxBody)
}
