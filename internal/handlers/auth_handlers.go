package handlers

import (
	"net/http"

	"chat-platform/internal/services"

	"github.com/gin-gonic/gin"
)

// AuthHandlers exposes the caller's own identity and presence.
type AuthHandlers struct {
	presence *services.PresenceService
}

func NewAuthHandlers(presence *services.PresenceService) *AuthHandlers {
	return &AuthHandlers{
		presence: presence,
	}
}

func (h *AuthHandlers) Me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":     user,
		"presence": h.presence.GetUserStatus(user.ID),
	})
}
