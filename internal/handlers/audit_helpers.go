package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"journey-chat/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(requestIDContextKey); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// auditUserID returns the authenticated caller, or nil on public routes.
func auditUserID(c *gin.Context) *int64 {
	userID := c.GetInt("userID")
	if userID <= 0 {
		return nil
	}
	value := int64(userID)
	return &value
}

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, level telemetry.Level, action, text, roomID string) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), telemetry.Record{
		Level:     level,
		Action:    action,
		Text:      text,
		RoomID:    roomID,
		RequestID: requestIDFromContext(c),
		UserID:    auditUserID(c),
	})
}
