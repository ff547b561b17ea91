package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/api"
	"github.com/myhuemungusD/skatehubba/internal/config"
	"github.com/myhuemungusD/skatehubba/internal/container"
	"github.com/myhuemungusD/skatehubba/pkg/logger"
	"github.com/myhuemungusD/skatehubba/pkg/telemetry"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting SkateHubba matchmaking",
		"port", cfg.Port,
		"env", cfg.Env,
		"durable_backend", cfg.DurableBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", "error", err)
	}

	c, err := container.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", "error", err)
	}
	c.Start(ctx)

	router := api.SetupRouter(cfg, c)

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	<-ctx.Done()
	stop()

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	c.Close(shutdownCtx)
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("Failed to flush telemetry", "error", err)
	}

	logger.Info("Server exited")
}
