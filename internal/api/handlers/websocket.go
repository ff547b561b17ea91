package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/myhuemungusD/skatehubba/internal/api/middleware"
	"github.com/myhuemungusD/skatehubba/internal/websocket"
)

// WebSocketHandler 로비 알림 WebSocket
type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader *gorilla.Upgrader
}

func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		upgrader: websocket.NewUpgrader(allowedOrigins),
	}
}

// HandleWebSocket 인증된 플레이어의 연결 업그레이드
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	uid := middleware.UserID(c)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	websocket.ServeWs(h.hub, h.upgrader, c.Writer, c.Request, uid)
}
