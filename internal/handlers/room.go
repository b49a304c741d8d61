package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"journey-chat/internal/models"
	"journey-chat/internal/observability"
	"journey-chat/internal/repositories"
	"journey-chat/internal/telemetry"
	"journey-chat/internal/validation"
	"journey-chat/internal/ws"
)

// Broadcaster fans a persisted message out to live subscribers.
type Broadcaster interface {
	BroadcastMessage(msg models.Message)
}

// RoomHandler manages room resolution and room history endpoints.
type RoomHandler struct {
	roomRepo    repositories.RoomRepository
	groupRepo   repositories.GroupRepository
	messageRepo repositories.MessageRepository
	profiles    repositories.ProfileRepository
	hub         Broadcaster
	validator   *validation.Validator
	bodyRule    string
	audit       *telemetry.AuditEmitter
}

// NewRoomHandler builds a RoomHandler. hub, profiles and audit may be nil.
func NewRoomHandler(roomRepo repositories.RoomRepository, groupRepo repositories.GroupRepository, messageRepo repositories.MessageRepository, profiles repositories.ProfileRepository, hub Broadcaster, v *validation.Validator, maxBody int, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{
		roomRepo:    roomRepo,
		groupRepo:   groupRepo,
		messageRepo: messageRepo,
		profiles:    profiles,
		hub:         hub,
		validator:   v,
		bodyRule:    ws.BodyRule(maxBody),
		audit:       audit,
	}
}

// ResolvePrivate handles POST /rooms/private. The same room is returned for
// either order of the pair.
func (h *RoomHandler) ResolvePrivate(c *gin.Context) {
	var req struct {
		UserIDs []int `json:"user_ids" binding:"required,len=2,dive,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	a, b := req.UserIDs[0], req.UserIDs[1]
	if a == b {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a private room needs two distinct users"})
		return
	}
	if userID != a && userID != b {
		emitAudit(c, h.audit, telemetry.LevelWarn, telemetry.ActionAccessDenied, "caller outside private pair", "")
		c.JSON(http.StatusForbidden, gin.H{"error": "caller must be part of the pair"})
		return
	}
	otherID := a
	if otherID == userID {
		otherID = b
	}

	room, created, err := h.roomRepo.ResolvePrivate(c.Request.Context(), userID, otherID)
	if errors.Is(err, repositories.ErrSelfRoom) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		emitAudit(c, h.audit, telemetry.LevelError, telemetry.ActionInternalError, err.Error(), "")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve room"})
		return
	}

	observability.IncRoomResolved(string(models.RoomPrivate), created)
	if created {
		emitAudit(c, h.audit, telemetry.LevelInfo, telemetry.ActionRoomCreated, "private room created", room.ID)
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// GetGroupRoom handles GET /groups/:group_id/room.
func (h *RoomHandler) GetGroupRoom(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil || groupID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	group, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	room, ok := h.loadMemberRoom(c, group.RoomID)
	if !ok {
		return
	}
	observability.IncRoomResolved(string(models.RoomGroup), false)
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// GetRoomMessages returns the room history oldest first.
func (h *RoomHandler) GetRoomMessages(c *gin.Context) {
	room, ok := h.loadMemberRoom(c, c.Param("room_id"))
	if !ok {
		return
	}

	msgs, err := h.messageRepo.ListRoomMessages(c.Request.Context(), room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostRoomMessage persists a message and broadcasts it to the room.
func (h *RoomHandler) PostRoomMessage(c *gin.Context) {
	room, ok := h.loadMemberRoom(c, c.Param("room_id"))
	if !ok {
		return
	}

	var req struct {
		Body        string `json:"body"`
		ClientNonce string `json:"client_nonce"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	body := strings.TrimSpace(req.Body)
	if err := h.validator.Validate("body", body, h.bodyRule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := h.messageRepo.CreateMessage(c.Request.Context(), models.Message{
		RoomID:      room.ID,
		AuthorID:    c.GetInt("userID"),
		Body:        body,
		ClientNonce: req.ClientNonce,
	})
	if err != nil {
		emitAudit(c, h.audit, telemetry.LevelError, telemetry.ActionInternalError, err.Error(), room.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send message"})
		return
	}
	observability.IncMessagePersisted("http")

	saved = ws.AttachAuthor(c.Request.Context(), h.profiles, saved)
	if h.hub != nil {
		h.hub.BroadcastMessage(saved)
	}
	c.JSON(http.StatusCreated, gin.H{"message": saved})
}

// loadMemberRoom writes the error response itself and reports false on failure.
func (h *RoomHandler) loadMemberRoom(c *gin.Context, roomID string) (models.Room, bool) {
	room, err := h.roomRepo.GetRoom(c.Request.Context(), roomID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return models.Room{}, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return models.Room{}, false
	}
	if !room.HasParticipant(c.GetInt("userID")) {
		emitAudit(c, h.audit, telemetry.LevelWarn, telemetry.ActionAccessDenied, "not a room member", room.ID)
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return models.Room{}, false
	}
	return room, true
}
