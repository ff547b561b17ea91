package distributed

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// 자신이 획득한 락만 해제
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 자신이 획득한 락만 TTL 연장
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock Redis 기반 분산 락
type RedisLock struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
}

// RedisLockManager 인스턴스 간 주기 작업 중복 실행 방지용 락 관리자
type RedisLockManager struct {
	client redis.UniversalClient
}

// NewRedisLockManager Redis Lock Manager 생성
func NewRedisLockManager(client redis.UniversalClient) *RedisLockManager {
	return &RedisLockManager{client: client}
}

// Acquire 이름 있는 락 획득 시도 (SET NX)
func (m *RedisLockManager) Acquire(ctx context.Context, name string, ttl time.Duration) (*RedisLock, error) {
	lock := &RedisLock{
		client: m.client,
		key:    lockKey(name),
		token:  uuid.NewString(),
		ttl:    ttl,
	}

	ok, err := m.client.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return lock, nil
}

// TryAcquire 재시도를 통한 락 획득
func (m *RedisLockManager) TryAcquire(ctx context.Context, name string, ttl time.Duration, attempts int, wait time.Duration) (*RedisLock, error) {
	for i := 0; i < attempts; i++ {
		lock, err := m.Acquire(ctx, name, ttl)
		if !errors.Is(err, ErrLockNotAcquired) {
			return lock, err
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return nil, ErrLockNotAcquired
}

// WithLock 락을 잡은 동안에만 fn 실행. 다른 인스턴스가 잡고 있으면 ErrLockNotAcquired.
func (m *RedisLockManager) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := m.Acquire(ctx, name, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// 만료 후 다른 인스턴스가 잡았을 수 있으므로 해제 실패는 무시
		_ = lock.Release(context.WithoutCancel(ctx))
	}()

	return fn(ctx)
}

// Release 락 해제
func (l *RedisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend 락 TTL 연장
func (l *RedisLock) Extend(ctx context.Context, extension time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, extension.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	l.ttl = extension
	return nil
}

// IsHeld 락이 현재 유효한지 확인
func (l *RedisLock) IsHeld(ctx context.Context) (bool, error) {
	value, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == l.token, nil
}
