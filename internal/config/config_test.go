package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv 테스트 환경 변수가 비어 있도록 보장
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DURABLE_BACKEND", "MONGO_URL", "MONGO_DB",
		"REDIS_URL", "JWT_SECRET", "JWT_EXPIRATION", "CORS_ALLOWED_ORIGINS",
		"TICKET_TTL", "PRESENCE_TTL", "LOBBY_TTL", "MATCH_SCAN_WINDOW",
		"MATCH_TRIGGER_ENABLED", "MATCH_TRIGGER_MIN_IDLE",
		"TICKET_SWEEP_INTERVAL", "TICKET_MAX_AGE", "LOBBY_SWEEP_INTERVAL", "LOBBY_MAX_AGE",
		"MATCH_RATE_LIMIT", "OTEL_SERVICE_NAME", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.DurableBackend)
	assert.Equal(t, 120*time.Second, cfg.TicketTTL)
	assert.Equal(t, 30*time.Second, cfg.PresenceTTL)
	assert.Equal(t, time.Hour, cfg.LobbyTTL)
	assert.Equal(t, int64(32), cfg.ScanWindow)
	assert.True(t, cfg.TriggerEnabled)
	assert.Equal(t, 5*time.Minute, cfg.TicketSweepInterval)
	assert.Equal(t, 3*time.Minute, cfg.TicketMaxAge)
	assert.Equal(t, 10*time.Minute, cfg.LobbySweepInterval)
	assert.Equal(t, 10*time.Minute, cfg.LobbyMaxAge)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/skatehubba")
	t.Setenv("TICKET_MAX_AGE", "90s")
	t.Setenv("MATCH_TRIGGER_ENABLED", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://skatehubba.com ,,https://admin.skatehubba.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.DurableBackend)
	assert.Equal(t, 90*time.Second, cfg.TicketMaxAge)
	assert.False(t, cfg.TriggerEnabled)
	assert.Equal(t, []string{"https://skatehubba.com", "https://admin.skatehubba.com"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOBBY_TTL", "soon")
	t.Setenv("PRESENCE_TTL", "-5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.LobbyTTL)
	assert.Equal(t, 30*time.Second, cfg.PresenceTTL)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"DURABLE_BACKEND": "postgres"}},
		{"mongo without url", map[string]string{"DURABLE_BACKEND": "mongo"}},
		{"unknown backend", map[string]string{"DURABLE_BACKEND": "sqlite"}},
		{"memory in production", map[string]string{"ENV": "production", "JWT_SECRET": "s3cret"}},
		{"default secret in production", map[string]string{"ENV": "production", "DATABASE_URL": "postgres://db"}},
		{"scan window too small", map[string]string{"MATCH_SCAN_WINDOW": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
