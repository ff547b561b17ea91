package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/myhuemungusD/skatehubba/internal/service"
)

type MatchHandler struct {
	matchmaking *service.MatchmakingService
}

func NewMatchHandler(matchmaking *service.MatchmakingService) *MatchHandler {
	return &MatchHandler{matchmaking: matchmaking}
}

// CancelRequest 매칭 취소 요청
type CancelRequest struct {
	UID      string `json:"uid"`
	TicketID string `json:"ticketId"`
}

// StartRequest 매칭 시작/폴링 요청 (빈 본문 허용)
type StartRequest struct {
	UID string `json:"uid"`
}

// Join 대기열 등록
func (h *MatchHandler) Join(c *gin.Context) {
	var req service.JoinRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	uid, ok := resolveUID(c, req.UID)
	if !ok {
		return
	}
	req.UID = uid

	ticket, err := h.matchmaking.Join(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "queued",
		"uid":      ticket.UID,
		"ticketId": ticket.ID,
	})
}

// Cancel 매칭 취소 (uid만 있으면 항상 성공)
func (h *MatchHandler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	uid, ok := resolveUID(c, req.UID)
	if !ok {
		return
	}

	if err := h.matchmaking.Cancel(c.Request.Context(), uid, req.TicketID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "cancelled",
		"uid":    uid,
	})
}

// Presence 접속 신호 갱신
func (h *MatchHandler) Presence(c *gin.Context) {
	var req service.PresenceRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	uid, ok := resolveUID(c, req.UID)
	if !ok {
		return
	}
	req.UID = uid

	if err := h.matchmaking.Heartbeat(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start 매칭 시도. uid가 있으면 그 플레이어의 상태를 돌려준다.
func (h *MatchHandler) Start(c *gin.Context) {
	var req StartRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	uid, ok := resolveUID(c, req.UID)
	if !ok {
		return
	}

	result, err := h.matchmaking.Poll(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// QueueStats 대기열 크기
func (h *MatchHandler) QueueStats(c *gin.Context) {
	size, err := h.matchmaking.QueueSize(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"size": size})
}
