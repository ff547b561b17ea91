package database

import (
	"context"
	"fmt"
	"time"

	"github.com/myhuemungusD/skatehubba/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis redis:// URL로 Redis 연결
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Redis connected successfully", "addr", opts.Addr, "db", opts.DB)

	return client, nil
}
