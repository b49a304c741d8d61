package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"journey-chat/internal/telemetry"
	"journey-chat/internal/validation"
)

type debugAuditQuery struct {
	RoomID string `form:"room_id" validate:"omitempty,max=64,printascii"`
	Action string `form:"action" validate:"omitempty,oneof=debug.test room.created group.created room.access_denied request.invalid request.failed"`
	Text   string `form:"text" validate:"max=200"`
}

// RegisterDebugRoutes wires debug-only endpoints. /debug/audit-test emits one
// audit record shaped like those of the room endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, v *validation.Validator, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}

		var q debugAuditQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := v.ValidateStruct(q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if q.Action == "" {
			q.Action = telemetry.ActionDebug
		}
		if q.Text == "" {
			q.Text = "audit test"
		}

		emitAudit(c, emitter, telemetry.LevelInfo, q.Action, q.Text, q.RoomID)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "action": q.Action, "room_id": q.RoomID})
	})
}
