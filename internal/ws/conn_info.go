package ws

import (
	"time"

	"journey-chat/internal/observability"
)

// ConnInfo identifies one transport connection for logs and events.
type ConnInfo struct {
	observability.RequestMeta
	ConnID      string
	UserID      int
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) identity() observability.Identity {
	return observability.Identity{UserID: i.UserID, DeviceID: i.DeviceID, IP: i.IP}
}
