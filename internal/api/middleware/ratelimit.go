package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/myhuemungusD/skatehubba/pkg/logger"
	"github.com/myhuemungusD/skatehubba/pkg/ratelimit"
)

// RateLimitConfig in-memory rate limit configuration
type RateLimitConfig struct {
	Limiter *ratelimit.RateLimiter
	Limit   int64 // for headers
	KeyFunc func(*gin.Context) string
}

// RedisRateLimitConfig Redis 기반 Rate Limit 설정
type RedisRateLimitConfig struct {
	Limiter *ratelimit.RedisRateLimiter
	Limit   int           // 윈도우 내 최대 요청 수
	Window  time.Duration // 윈도우 크기
	KeyFunc func(*gin.Context) string
}

// DefaultKeyFunc uses the authenticated uid if present, otherwise the client IP
func DefaultKeyFunc(c *gin.Context) string {
	if uid := UserID(c); uid != "" {
		return fmt.Sprintf("user:%s", uid)
	}
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// IPKeyFunc uses only the client IP
func IPKeyFunc(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimitMiddleware single-instance token bucket limiter
func RateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		if !config.Limiter.Allow(key) {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Limit, 10))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")

			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Limit, 10))
		c.Next()
	}
}

// RedisRateLimitMiddleware 모든 인스턴스가 버킷을 공유하는 Rate Limiting 미들웨어
func RedisRateLimitMiddleware(config RedisRateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}
	if config.Limit <= 0 {
		config.Limit = 60
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		allowed, info, err := config.Limiter.AllowN(c.Request.Context(), key, config.Limit, config.Window)
		if err != nil {
			// Redis 오류 시 요청 허용 (Fail-open)
			logger.Warn("Rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(info.ResetTime).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RedisMatchRateLimit 매칭 라우트 Rate Limit (limit회/분, uid 또는 IP 기준)
func RedisMatchRateLimit(limiter *ratelimit.RedisRateLimiter, limit int) gin.HandlerFunc {
	return RedisRateLimitMiddleware(RedisRateLimitConfig{
		Limiter: limiter,
		Limit:   limit,
		Window:  time.Minute,
		KeyFunc: DefaultKeyFunc,
	})
}

// DevRateLimit 개발용 라우트 Rate Limit (30회/분, IP 기준)
func DevRateLimit(limiter *ratelimit.RateLimiter) gin.HandlerFunc {
	return RateLimitMiddleware(RateLimitConfig{
		Limiter: limiter,
		Limit:   30,
		KeyFunc: IPKeyFunc,
	})
}
