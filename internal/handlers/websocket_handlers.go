package handlers

import (
	"context"
	"net/http"

	"chat-platform/internal/auth"
	"chat-platform/internal/hub"
	ws "chat-platform/internal/websocket"
	"chat-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	opts        ws.Options
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, opts ws.Options, allowedOrigins []string) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		opts:        opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// Serve upgrades the request and attaches the connection to d. The token comes
// from ?token= because browsers cannot set headers on websocket requests.
func (h *WebSocketHandlers) Serve(d hub.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.authService.GetUserFromToken(c.Request.Context(), c.Query("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("Upgrade error: %v", err)
			return
		}

		client := ws.NewClient(conn, user, d, h.opts)
		if err := client.Start(context.WithoutCancel(c.Request.Context())); err != nil {
			logger.Error("Error starting client: %v", err)
			conn.Close()
		}
	}
}
