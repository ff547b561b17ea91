package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwtutil "github.com/myhuemungusD/skatehubba/pkg/jwt"
	"github.com/myhuemungusD/skatehubba/pkg/logger"
)

// AuthHandler 개발용 토큰 발급. 실제 로그인은 외부 ID 공급자가 담당한다.
type AuthHandler struct {
	jwtManager *jwtutil.JWTManager
}

func NewAuthHandler(jwtManager *jwtutil.JWTManager) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager}
}

type TokenRequest struct {
	UID    string `json:"uid" binding:"required"`
	Handle string `json:"handle"`
}

// IssueToken uid로 서명된 토큰 발급
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid is required"})
		return
	}

	token, err := h.jwtManager.Generate(strings.TrimSpace(req.UID), req.Handle)
	if err != nil {
		logger.Error("Failed to generate token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"uid":   strings.TrimSpace(req.UID),
	})
}
