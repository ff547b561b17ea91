package api

import (
	"github.com/gin-gonic/gin"
	"github.com/myhuemungusD/skatehubba/internal/api/handlers"
	"github.com/myhuemungusD/skatehubba/internal/api/middleware"
	"github.com/myhuemungusD/skatehubba/internal/config"
	"github.com/myhuemungusD/skatehubba/internal/container"
)

// SetupRouter API 라우터 설정
func SetupRouter(cfg *config.Config, c *container.Container) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Handler 초기화
	checks := make(map[string]handlers.Pinger, len(c.Pingers))
	for name, ping := range c.Pingers {
		checks[name] = handlers.Pinger(ping)
	}
	healthHandler := handlers.NewHealthHandler(checks)
	matchHandler := handlers.NewMatchHandler(c.Matchmaking)
	lobbyHandler := handlers.NewLobbyHandler(c.Matchmaking)
	userHandler := handlers.NewUserHandler(c.Users)
	wsHandler := handlers.NewWebSocketHandler(c.Hub, cfg.CORSAllowedOrigins)

	// Health check
	router.GET("/health", healthHandler.HealthCheck)

	identity := middleware.Identity(c.JWT)
	matchLimit := middleware.RedisMatchRateLimit(c.MatchLimiter, cfg.MatchRateLimit)

	// API v1
	v1 := router.Group("/api/v1")
	{
		// WebSocket endpoint
		v1.GET("/ws", middleware.Auth(c.JWT), wsHandler.HandleWebSocket)

		// Match routes
		match := v1.Group("/match")
		match.Use(identity)
		{
			match.POST("/join", matchLimit, matchHandler.Join)
			match.POST("/cancel", matchHandler.Cancel)
			match.POST("/presence", matchHandler.Presence)
			match.POST("/start", matchLimit, matchHandler.Start)
			match.GET("/queue", matchHandler.QueueStats)
		}

		// Lobby routes
		v1.GET("/lobbies/:id", identity, lobbyHandler.GetLobby)

		// User routes
		users := v1.Group("/users")
		users.Use(middleware.Auth(c.JWT))
		{
			users.GET("/me", userHandler.GetCurrentUser)
		}

		// 개발 환경 전용 라우트
		if !cfg.IsProduction() {
			devHandler := handlers.NewDevHandler(c.Dev, c.Matchmaking)
			authHandler := handlers.NewAuthHandler(c.JWT)

			dev := v1.Group("/dev")
			dev.Use(middleware.DevRateLimit(c.DevLimiter), identity)
			{
				dev.POST("/presence", devHandler.Presence)
				dev.POST("/tickets/cleanup", devHandler.CleanupTickets)
				dev.POST("/force-match", devHandler.ForceMatch)
				dev.POST("/fake-lobby", devHandler.FakeLobby)
				dev.POST("/reset-user", devHandler.ResetUser)
				dev.POST("/token", authHandler.IssueToken)
			}
		}
	}

	return router
}
