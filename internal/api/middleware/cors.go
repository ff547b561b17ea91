package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS 허용 origin 목록 기반 CORS 미들웨어. "*"이면 모든 origin 허용.
// 목록에 없는 origin의 요청은 403으로 끊긴다.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	if allowed["*"] {
		// 와일드카드 응답에는 credentials를 붙일 수 없다
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOriginFunc = func(origin string) bool {
			return allowed[origin]
		}
	}

	return cors.New(cfg)
}
