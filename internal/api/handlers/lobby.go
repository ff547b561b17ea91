package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/myhuemungusD/skatehubba/internal/api/middleware"
	"github.com/myhuemungusD/skatehubba/internal/service"
)

type LobbyHandler struct {
	matchmaking *service.MatchmakingService
}

func NewLobbyHandler(matchmaking *service.MatchmakingService) *LobbyHandler {
	return &LobbyHandler{matchmaking: matchmaking}
}

// GetLobby 로비 조회. 토큰이 있으면 참가자만 볼 수 있다.
func (h *LobbyHandler) GetLobby(c *gin.Context) {
	lobby, err := h.matchmaking.GetLobby(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if uid := middleware.UserID(c); uid != "" && !lobby.HasPlayer(uid) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this lobby"})
		return
	}

	c.JSON(http.StatusOK, lobby)
}
