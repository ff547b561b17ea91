package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript 토큰 버킷을 원자적으로 리필하고 1개 소비
// 반환: {allowed, tokens_remaining, reset_ms}
var tokenBucketScript = redis.NewScript(`
local tokens_key = KEYS[1] .. ":tokens"
local timestamp_key = KEYS[1] .. ":timestamp"
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = tonumber(redis.call('GET', tokens_key))
local last_update = tonumber(redis.call('GET', timestamp_key))
if tokens == nil or last_update == nil then
	tokens = limit
	last_update = now
end

local elapsed = math.max(0, now - last_update)
local new_tokens = math.min(limit, tokens + (elapsed * limit / window_ms))

local allowed = 0
if new_tokens >= 1 then
	new_tokens = new_tokens - 1
	allowed = 1
end

redis.call('SET', tokens_key, tostring(new_tokens), 'PX', window_ms * 2)
redis.call('SET', timestamp_key, tostring(now), 'PX', window_ms * 2)

return {allowed, math.floor(new_tokens), now + window_ms}
`)

// RedisRateLimiter Redis 기반 분산 Rate Limiter (Token Bucket 알고리즘)
// 모든 인스턴스가 같은 버킷을 공유한다.
type RedisRateLimiter struct {
	client       redis.UniversalClient
	keyPrefix    string
	defaultLimit int
	window       time.Duration
	now          func() time.Time
}

// RedisRateLimiterConfig Redis Rate Limiter 설정
type RedisRateLimiterConfig struct {
	KeyPrefix    string        // 키 접두사 (예: "ratelimit:")
	DefaultLimit int           // 윈도우당 기본 요청 제한
	Window       time.Duration // 윈도우 크기
}

// NewRedisRateLimiter 공유 Redis 클라이언트로 Rate Limiter 생성
func NewRedisRateLimiter(client redis.UniversalClient, config RedisRateLimiterConfig) *RedisRateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ratelimit:"
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 60
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	return &RedisRateLimiter{
		client:       client,
		keyPrefix:    config.KeyPrefix,
		defaultLimit: config.DefaultLimit,
		window:       config.Window,
		now:          time.Now,
	}
}

// Allow 기본 한도로 요청 허용 여부 확인
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, *RateLimitInfo, error) {
	return r.AllowN(ctx, key, r.defaultLimit, r.window)
}

// AllowN 지정한 한도와 윈도우로 요청 허용 여부 확인
func (r *RedisRateLimiter) AllowN(ctx context.Context, key string, limit int, window time.Duration) (bool, *RateLimitInfo, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if window <= 0 {
		window = r.window
	}

	now := r.now().UnixMilli()
	result, err := tokenBucketScript.Run(ctx, r.client,
		[]string{r.keyPrefix + key},
		limit, window.Milliseconds(), now,
	).Int64Slice()
	if err != nil {
		return false, nil, fmt.Errorf("redis script execution failed: %w", err)
	}
	if len(result) < 3 {
		return false, nil, fmt.Errorf("invalid script result")
	}

	info := &RateLimitInfo{
		Limit:     limit,
		Remaining: int(result[1]),
		ResetTime: time.UnixMilli(result[2]),
	}
	return result[0] == 1, info, nil
}

// Reset 특정 키의 Rate Limit 초기화
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	redisKey := r.keyPrefix + key

	pipe := r.client.Pipeline()
	pipe.Del(ctx, redisKey+":tokens")
	pipe.Del(ctx, redisKey+":timestamp")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}

// RateLimitInfo Rate Limit 상세 정보
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}
