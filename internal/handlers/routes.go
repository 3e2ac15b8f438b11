package handlers

import (
	"net/http"

	"chat-platform/internal/auth"
	"chat-platform/internal/hub"
	"chat-platform/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes bundles everything the HTTP router serves.
type Routes struct {
	Auth           *auth.Service
	AuthHandlers   *AuthHandlers
	RoomHandlers   *RoomHandlers
	WebSocket      *WebSocketHandlers
	Rooms          hub.Dispatcher
	Groups         hub.Dispatcher
	Private        hub.Dispatcher
	AllowedOrigins []string
}

func NewRouter(r Routes) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), CORS(r.AllowedOrigins))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.GET("/ws/room", r.WebSocket.Serve(r.Rooms))
	engine.GET("/ws/group", r.WebSocket.Serve(r.Groups))
	engine.GET("/ws/private", r.WebSocket.Serve(r.Private))

	api := engine.Group("/", RequireUser(r.Auth))
	api.GET("/me", r.AuthHandlers.Me)
	api.GET("/rooms/:id/active", r.RoomHandlers.GetActiveUsers)
	api.POST("/rooms/:id/summary", r.RoomHandlers.Summarize(models.ScopeRoom))
	api.POST("/groups/:id/summary", r.RoomHandlers.Summarize(models.ScopeGroup))
	api.GET("/presence/online", r.RoomHandlers.ListOnline)
	api.GET("/presence/:userId", r.RoomHandlers.GetUserStatus)

	return engine
}
