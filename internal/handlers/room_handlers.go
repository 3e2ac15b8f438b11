package handlers

import (
	"context"
	"net/http"
	"strconv"

	"chat-platform/internal/database"
	"chat-platform/internal/errs"
	"chat-platform/internal/models"
	"chat-platform/internal/services"
	"chat-platform/internal/summary"

	"github.com/gin-gonic/gin"
)

type RoomHandlers struct {
	presence *services.PresenceService
	summary  *summary.Service
	groups   database.GroupStore
}

func NewRoomHandlers(presence *services.PresenceService, summaries *summary.Service, groups database.GroupStore) *RoomHandlers {
	return &RoomHandlers{
		presence: presence,
		summary:  summaries,
		groups:   groups,
	}
}

func (h *RoomHandlers) GetActiveUsers(c *gin.Context) {
	roomID, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	users, err := h.presence.GetActiveUsers(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, errs.Wrap(errs.KindInternal, err, "failed to load active users"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "users": users, "user_count": len(users)})
}

func (h *RoomHandlers) ListOnline(c *gin.Context) {
	users := h.presence.ListOnlineUsers(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"users": users, "user_count": len(users)})
}

func (h *RoomHandlers) GetUserStatus(c *gin.Context) {
	userID, err := idParam(c, "userId")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.presence.GetUserStatus(userID))
}

type summaryRequest struct {
	Count int `json:"count"`
}

// Summarize returns a handler for POST /<scope>s/:id/summary.
func (h *RoomHandlers) Summarize(scope models.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopeID, err := idParam(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}

		var req summaryRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, errs.Wrap(errs.KindInvalidInput, err, "invalid request"))
				return
			}
		}

		if scope == models.ScopeGroup {
			if err := h.checkGroupMember(c.Request.Context(), scopeID, currentUser(c)); err != nil {
				respondError(c, err)
				return
			}
		}

		res, err := h.summary.Summarize(c.Request.Context(), scope, scopeID, req.Count)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func (h *RoomHandlers) checkGroupMember(ctx context.Context, groupID int64, user *models.User) error {
	if user == nil {
		return errs.New(errs.KindForbidden, "unauthorized")
	}
	ok, err := h.groups.IsGroupMember(ctx, groupID, user.ID)
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "could not verify group membership")
	}
	if !ok {
		return errs.Newf(errs.KindForbidden, "not a member of group %d", groupID)
	}
	return nil
}

func idParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Newf(errs.KindInvalidInput, "invalid %s", name)
	}
	return id, nil
}
