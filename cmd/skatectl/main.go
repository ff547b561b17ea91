package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/myhuemungusD/skatehubba/internal/config"
	"github.com/myhuemungusD/skatehubba/internal/container"
	"github.com/myhuemungusD/skatehubba/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:           "skatectl",
	Short:         "SkateHubba 매칭 운영 도구",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("redis-url", "", "Redis URL (기본값: REDIS_URL)")
	flags.String("durable-backend", "", "postgres | mongo | memory (기본값: DURABLE_BACKEND)")
	flags.String("database-url", "", "PostgreSQL URL (기본값: DATABASE_URL)")
	flags.String("mongo-url", "", "MongoDB URL (기본값: MONGO_URL)")
	flags.String("log-level", "warn", "로그 레벨")

	for _, name := range []string{"redis-url", "durable-backend", "database-url", "mongo-url", "log-level"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	v.SetEnvPrefix("SKATECTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(migrateCmd(), sweepCmd(), queueCmd(), matchCmd())
}

// loadConfig 서버 설정에 플래그와 SKATECTL_* 환경 변수를 덮어쓴다.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if s := v.GetString("redis-url"); s != "" {
		cfg.RedisURL = s
	}
	if s := v.GetString("database-url"); s != "" {
		cfg.DatabaseURL = s
	}
	if s := v.GetString("mongo-url"); s != "" {
		cfg.MongoURL = s
	}
	if s := v.GetString("durable-backend"); s != "" {
		cfg.DurableBackend = strings.ToLower(s)
	}
	cfg.LogLevel = v.GetString("log-level")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Init(cfg.Env, cfg.LogLevel)
	return cfg, nil
}

// withContainer 서비스를 조립해 fn을 실행하고 연결을 닫는다.
func withContainer(ctx context.Context, fn func(c *container.Container) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := container.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	return fn(c)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
