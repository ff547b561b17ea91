package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/myhuemungusD/skatehubba/internal/api/middleware"
	"github.com/myhuemungusD/skatehubba/internal/service"
	"github.com/myhuemungusD/skatehubba/pkg/logger"
)

// respondError 서비스 에러를 상태 코드와 {error: message}로 변환
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidPair):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrMalformedQueueEntry):
		c.JSON(http.StatusConflict, gin.H{"error": service.ErrMalformedQueueEntry.Error()})

	case errors.Is(err, service.ErrRaceLost), errors.Is(err, service.ErrNotEnoughTickets):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrLobbyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrStoreUnavailable):
		logger.Error("Store unavailable", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": service.ErrStoreUnavailable.Error()})

	default:
		logger.Error("Unhandled error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bindOptionalJSON 빈 본문은 허용하고 나머지는 ShouldBindJSON으로 해석
func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if c.Request.Body == nil {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// resolveUID 본문 uid와 토큰 uid를 맞춘다
// 토큰이 없으면 본문 그대로, 본문이 비었으면 토큰 uid, 둘이 다르면 403을 쓰고 false.
func resolveUID(c *gin.Context, bodyUID string) (string, bool) {
	tokenUID := middleware.UserID(c)
	switch {
	case tokenUID == "":
		return bodyUID, true
	case bodyUID == "":
		return tokenUID, true
	case bodyUID != tokenUID:
		c.JSON(http.StatusForbidden, gin.H{"error": "uid does not match token"})
		return "", false
	}
	return bodyUID, true
}
