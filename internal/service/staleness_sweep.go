package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/repository"
	"github.com/myhuemungusD/skatehubba/pkg/distributed"
	"github.com/myhuemungusD/skatehubba/pkg/telemetry"
	"go.uber.org/zap"
)

// SweepFunc cutoff 이전 레코드를 삭제하고 삭제 수를 반환
type SweepFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// StalenessSweep 주기적으로 오래된 레코드를 정리하는 백그라운드 작업
// 락 관리자가 있으면 인스턴스 중 하나만 같은 주기에 실행한다.
type StalenessSweep struct {
	name     string
	interval time.Duration
	maxAge   time.Duration
	sweep    SweepFunc
	locks    *distributed.RedisLockManager
	metrics  *telemetry.MatchmakingMetrics
	logger   *zap.Logger
	now      func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewStalenessSweep 임의의 정리 함수로 작업 생성
func NewStalenessSweep(name string, interval, maxAge time.Duration, sweep SweepFunc, locks *distributed.RedisLockManager, metrics *telemetry.MatchmakingMetrics, logger *zap.Logger) *StalenessSweep {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StalenessSweep{
		name:     name,
		interval: interval,
		maxAge:   maxAge,
		sweep:    sweep,
		locks:    locks,
		metrics:  metrics,
		logger:   logger.Named("sweep").With(zap.String("sweep", name)),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// NewTicketSweep 오래된 영속 티켓과 대기열 멤버 정리
// 대기열은 점수로 지우므로 해석할 수 없는 멤버도 함께 사라진다.
func NewTicketSweep(tickets repository.TicketStore, queue TicketQueue, interval, maxAge time.Duration, locks *distributed.RedisLockManager, metrics *telemetry.MatchmakingMetrics, logger *zap.Logger) *StalenessSweep {
	sweep := func(ctx context.Context, cutoff time.Time) (int64, error) {
		durable, err := tickets.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return 0, storeError("sweep tickets", err)
		}
		queued, err := queue.RemoveOlderThan(ctx, cutoff)
		if err != nil {
			return durable, storeError("sweep queue", err)
		}
		return durable + queued, nil
	}
	return NewStalenessSweep("tickets", interval, maxAge, sweep, locks, metrics, logger)
}

// NewLobbySweep 오래된 로비 정리
func NewLobbySweep(lobbies repository.LobbyStore, interval, maxAge time.Duration, locks *distributed.RedisLockManager, metrics *telemetry.MatchmakingMetrics, logger *zap.Logger) *StalenessSweep {
	sweep := func(ctx context.Context, cutoff time.Time) (int64, error) {
		n, err := lobbies.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return 0, storeError("sweep lobbies", err)
		}
		return n, nil
	}
	return NewStalenessSweep("lobbies", interval, maxAge, sweep, locks, metrics, logger)
}

// Start 정리 루프 시작
func (s *StalenessSweep) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting staleness sweep",
		zap.Duration("interval", s.interval),
		zap.Duration("max_age", s.maxAge))

	s.wg.Add(1)
	go s.loop()
}

// Stop 정리 루프 중지
func (s *StalenessSweep) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("Staleness sweep stopped")
}

func (s *StalenessSweep) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if _, err := s.RunLocked(ctx); err != nil && !errors.Is(err, distributed.ErrLockNotAcquired) {
				s.logger.Error("Staleness sweep failed", zap.Error(err))
			}
			cancel()
		case <-s.stopChan:
			return
		}
	}
}

// RunLocked 락을 잡고 한 번 실행. 다른 인스턴스가 실행 중이면 ErrLockNotAcquired.
func (s *StalenessSweep) RunLocked(ctx context.Context) (int64, error) {
	if s.locks == nil {
		return s.RunOnce(ctx)
	}

	var removed int64
	err := s.locks.WithLock(ctx, "sweep:"+s.name, s.interval, func(ctx context.Context) error {
		var err error
		removed, err = s.RunOnce(ctx)
		return err
	})
	if errors.Is(err, distributed.ErrLockNotAcquired) {
		s.logger.Debug("Sweep held by another instance")
	}
	return removed, err
}

// RunOnce maxAge보다 오래된 레코드를 즉시 정리
func (s *StalenessSweep) RunOnce(ctx context.Context) (int64, error) {
	return s.RunOlderThan(ctx, s.maxAge)
}

// RunOlderThan 지정한 나이보다 오래된 레코드 정리. 0이면 전부.
func (s *StalenessSweep) RunOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := s.now().Add(-age)
	if age <= 0 {
		cutoff = s.now().Add(time.Millisecond)
	}

	removed, err := s.sweep(ctx, cutoff)
	s.metrics.Swept(ctx, s.name, removed)
	if err != nil {
		return removed, err
	}

	if removed > 0 {
		s.logger.Info("Swept stale records", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}
