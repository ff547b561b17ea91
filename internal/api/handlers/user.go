package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/myhuemungusD/skatehubba/internal/api/middleware"
	"github.com/myhuemungusD/skatehubba/internal/service"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetCurrentUser 현재 플레이어의 로비 연결 상태
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	uid := middleware.UserID(c)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	user, err := h.userService.GetByUID(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"uid":     user.UID,
		"handle":  c.GetString(middleware.HandleKey),
		"lobbyId": user.LobbyID,
		"inMatch": user.InMatch,
	})
}
