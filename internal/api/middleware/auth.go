package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwtutil "github.com/myhuemungusD/skatehubba/pkg/jwt"
)

// context 키
const (
	UserIDKey = "userId"
	HandleKey = "handle"
)

// bearerToken Authorization 헤더에서 토큰 추출. 헤더가 없으면 ok=false.
func bearerToken(c *gin.Context) (token string, present bool, valid bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false, false
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", true, false
	}
	return parts[1], true, true
}

// Auth JWT 인증 필수 미들웨어
func Auth(jwtManager *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present, valid := bearerToken(c)
		if !present {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}
		if !valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := jwtManager.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(HandleKey, claims.Handle)
		c.Next()
	}
}

// Identity 토큰이 있을 때만 검증하는 미들웨어
// 토큰이 없으면 통과시키고, 있으면서 유효하지 않으면 401.
func Identity(jwtManager *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present, valid := bearerToken(c)
		if !present {
			c.Next()
			return
		}
		if !valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := jwtManager.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(HandleKey, claims.Handle)
		c.Next()
	}
}

// UserID 인증된 uid (없으면 빈 문자열)
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
