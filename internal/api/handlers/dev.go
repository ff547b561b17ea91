package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/myhuemungusD/skatehubba/internal/service"
)

// DevHandler 개발 환경 전용 라우트
type DevHandler struct {
	dev         *service.DevService
	matchmaking *service.MatchmakingService
}

func NewDevHandler(dev *service.DevService, matchmaking *service.MatchmakingService) *DevHandler {
	return &DevHandler{dev: dev, matchmaking: matchmaking}
}

type FakeLobbyRequest struct {
	Players []string `json:"players"`
	Mode    string   `json:"mode"`
}

type ResetUserRequest struct {
	UID string `json:"uid"`
}

// Presence 살아 있는 접속 신호 목록
func (h *DevHandler) Presence(c *gin.Context) {
	list, err := h.matchmaking.Presence(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(list),
		"presence": list,
	})
}

// CleanupTickets 모든 티켓 삭제
func (h *DevHandler) CleanupTickets(c *gin.Context) {
	removed, err := h.dev.CleanupTickets(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// ForceMatch 가장 오래된 두 티켓 매칭
func (h *DevHandler) ForceMatch(c *gin.Context) {
	lobby, err := h.dev.ForceMatch(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, lobby)
}

// FakeLobby 대기열 없이 로비 생성
func (h *DevHandler) FakeLobby(c *gin.Context) {
	var req FakeLobbyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	lobby, err := h.dev.FakeLobby(c.Request.Context(), req.Players, req.Mode)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, lobby)
}

// ResetUser 플레이어 로비 연결 해제
func (h *DevHandler) ResetUser(c *gin.Context) {
	var req ResetUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	uid, ok := resolveUID(c, req.UID)
	if !ok {
		return
	}

	if err := h.dev.ResetUser(c.Request.Context(), uid); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reset", "uid": uid})
}
