package handlers

import (
	"net/http"
	"slices"
	"strings"

	"chat-platform/internal/auth"
	"chat-platform/internal/errs"
	"chat-platform/internal/models"
	"chat-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const userKey = "user"

// CORS allows the configured origins; "*" allows any.
func CORS(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if originAllowed(allowed, origin) {
			if slices.Contains(allowed, "*") {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// RequireUser resolves the bearer token (header or ?token=) to a user and
// stores it on the context.
func RequireUser(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.TokenFromHeader(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		user, err := authService.GetUserFromToken(c.Request.Context(), token)
		if err != nil {
			logger.Debug("Rejected token for %s: %v", c.FullPath(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

func respondError(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": errs.Message(err), "code": errs.KindOf(err)})
}
