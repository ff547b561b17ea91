package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 영속 저장소 백엔드
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

const defaultJWTSecret = "your-secret-key"

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Durable store
	DurableBackend string
	DatabaseURL    string
	MongoURL       string
	MongoDB        string

	// Redis
	RedisURL string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Matchmaking
	TicketTTL      time.Duration
	PresenceTTL    time.Duration
	LobbyTTL       time.Duration
	ScanWindow     int64
	TriggerEnabled bool
	TriggerMinIdle time.Duration

	// Staleness sweeps
	TicketSweepInterval time.Duration
	TicketMaxAge        time.Duration
	LobbySweepInterval  time.Duration
	LobbyMaxAge         time.Duration

	// Rate limit (요청/분)
	MatchRateLimit int

	// Telemetry
	ServiceName  string
	OTelEndpoint string
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoURL:    getEnv("MONGO_URL", ""),
		MongoDB:     getEnv("MONGO_DB", "skatehubba"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		JWTSecret:     getEnv("JWT_SECRET", defaultJWTSecret),
		JWTExpiration: parseDuration(getEnv("JWT_EXPIRATION", ""), 24*time.Hour),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),

		TicketTTL:      parseDuration(getEnv("TICKET_TTL", ""), 120*time.Second),
		PresenceTTL:    parseDuration(getEnv("PRESENCE_TTL", ""), 30*time.Second),
		LobbyTTL:       parseDuration(getEnv("LOBBY_TTL", ""), time.Hour),
		ScanWindow:     int64(parseInt(getEnv("MATCH_SCAN_WINDOW", ""), 32)),
		TriggerEnabled: parseBool(getEnv("MATCH_TRIGGER_ENABLED", ""), true),
		TriggerMinIdle: parseDuration(getEnv("MATCH_TRIGGER_MIN_IDLE", ""), 30*time.Second),

		TicketSweepInterval: parseDuration(getEnv("TICKET_SWEEP_INTERVAL", ""), 5*time.Minute),
		TicketMaxAge:        parseDuration(getEnv("TICKET_MAX_AGE", ""), 3*time.Minute),
		LobbySweepInterval:  parseDuration(getEnv("LOBBY_SWEEP_INTERVAL", ""), 10*time.Minute),
		LobbyMaxAge:         parseDuration(getEnv("LOBBY_MAX_AGE", ""), 10*time.Minute),

		MatchRateLimit: parseInt(getEnv("MATCH_RATE_LIMIT", ""), 60),

		ServiceName:  getEnv("OTEL_SERVICE_NAME", "skatehubba-matchmaking"),
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	cfg.DurableBackend = strings.ToLower(getEnv("DURABLE_BACKEND", ""))
	if cfg.DurableBackend == "" {
		// DATABASE_URL이 없으면 메모리 저장소로 동작
		cfg.DurableBackend = BackendMemory
		if cfg.DatabaseURL != "" {
			cfg.DurableBackend = BackendPostgres
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 설정 조합 검사
func (c *Config) Validate() error {
	switch c.DurableBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", BackendPostgres)
		}
	case BackendMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("MONGO_URL is required for the %s backend", BackendMongo)
		}
	case BackendMemory:
		if c.IsProduction() {
			return fmt.Errorf("the %s backend is not allowed in production", BackendMemory)
		}
	default:
		return fmt.Errorf("unknown DURABLE_BACKEND %q", c.DurableBackend)
	}

	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.ScanWindow < 2 {
		return fmt.Errorf("MATCH_SCAN_WINDOW must be at least 2")
	}
	return nil
}

// IsProduction production 환경 여부 (개발용 라우트 비활성)
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
