package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"journey-chat/internal/models"
	"journey-chat/internal/repositories"
	"journey-chat/internal/validation"
)

type ProfileHandler struct {
	profiles  repositories.ProfileRepository
	validator *validation.Validator
}

func NewProfileHandler(profiles repositories.ProfileRepository, v *validation.Validator) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, validator: v}
}

// GetProfile handles GET /users/:user_id.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	profile, err := h.profiles.GetProfile(c.Request.Context(), userID)
	if errors.Is(err, repositories.ErrProfileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile})
}

type upsertProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=120"`
	AvatarURL   string `json:"avatar_url" validate:"omitempty,url"`
}

// UpsertMe handles PUT /users/me.
func (h *ProfileHandler) UpsertMe(c *gin.Context) {
	var req upsertProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile := models.Profile{
		UserID:      c.GetInt("userID"),
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	}
	if err := h.profiles.UpsertProfile(c.Request.Context(), profile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile})
}
