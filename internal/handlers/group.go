package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"journey-chat/internal/models"
	"journey-chat/internal/observability"
	"journey-chat/internal/repositories"
	"journey-chat/internal/telemetry"
	"journey-chat/internal/validation"
)

// GroupHandler manages group-related endpoints.
type GroupHandler struct {
	groupRepo repositories.GroupRepository
	validator *validation.Validator
	audit     *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groupRepo repositories.GroupRepository, v *validation.Validator, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{
		groupRepo: groupRepo,
		validator: v,
		audit:     audit,
	}
}

type createGroupRequest struct {
	Name      string `json:"name" validate:"required,max=80"`
	MemberIDs []int  `json:"member_ids" validate:"dive,gt=0"`
}

// CreateGroup handles POST /groups. The group's room is created with it.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetInt("userID")

	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, telemetry.LevelWarn, telemetry.ActionInvalidInput, err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		emitAudit(c, h.audit, telemetry.LevelWarn, telemetry.ActionInvalidInput, err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groupRepo.CreateGroup(c.Request.Context(), userID, req.Name, req.MemberIDs)
	if err != nil {
		emitAudit(c, h.audit, telemetry.LevelError, telemetry.ActionInternalError, err.Error(), "")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	observability.IncRoomResolved(string(models.RoomGroup), true)
	emitAudit(c, h.audit, telemetry.LevelInfo, telemetry.ActionGroupCreated, req.Name, group.RoomID)
	c.JSON(http.StatusCreated, gin.H{"group_id": group.ID, "room_id": group.RoomID})
}

// ListGroups returns groups the caller belongs to.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID := c.GetInt("userID")
	groups, err := h.groupRepo.ListGroupsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}
