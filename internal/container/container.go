package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/config"
	"github.com/myhuemungusD/skatehubba/internal/models"
	"github.com/myhuemungusD/skatehubba/internal/repository"
	"github.com/myhuemungusD/skatehubba/internal/service"
	"github.com/myhuemungusD/skatehubba/internal/websocket"
	"github.com/myhuemungusD/skatehubba/pkg/database"
	"github.com/myhuemungusD/skatehubba/pkg/distributed"
	jwtutil "github.com/myhuemungusD/skatehubba/pkg/jwt"
	"github.com/myhuemungusD/skatehubba/pkg/logger"
	"github.com/myhuemungusD/skatehubba/pkg/ratelimit"
	"github.com/myhuemungusD/skatehubba/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const (
	devRateCapacity        = 30
	devLimiterCleanupEvery = time.Minute
)

// PingFunc 저장소 상태 확인
type PingFunc func(ctx context.Context) error

// Base 외부 연결 자원. 닫는 순서는 등록의 역순.
type Base struct {
	Redis   redis.UniversalClient
	Stores  repository.Stores
	Pingers map[string]PingFunc

	closers []func(ctx context.Context) error
}

// Open Redis와 영속 저장소 연결
func Open(ctx context.Context, cfg *config.Config) (*Base, error) {
	base := &Base{Pingers: map[string]PingFunc{}}

	client, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	base.Redis = client
	base.Pingers["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	base.closers = append(base.closers, func(context.Context) error { return client.Close() })

	if err := base.openDurable(ctx, cfg); err != nil {
		base.Close(ctx)
		return nil, err
	}

	return base, nil
}

func (b *Base) openDurable(ctx context.Context, cfg *config.Config) error {
	switch cfg.DurableBackend {
	case config.BackendPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func(context.Context) error { return db.Close() })
		if err := repository.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		b.Stores = repository.NewPostgresStores(db)
		b.Pingers["postgres"] = db.PingContext

	case config.BackendMongo:
		m, err := database.ConnectMongo(ctx, cfg.MongoURL, cfg.MongoDB)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, m.Close)
		if err := repository.EnsureMongoIndexes(ctx, m.DB); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
		b.Stores = repository.NewMongoStores(m.DB)
		b.Pingers["mongo"] = func(ctx context.Context) error { return m.Client.Ping(ctx, readpref.Primary()) }

	case config.BackendMemory:
		logger.Warn("Using in-memory durable store; tickets and lobbies are lost on restart")
		b.Stores = repository.NewMemoryStores()

	default:
		return fmt.Errorf("unknown durable backend %q", cfg.DurableBackend)
	}
	return nil
}

// Close 등록된 자원을 역순으로 닫는다. 실패는 로그만 남긴다.
func (b *Base) Close(ctx context.Context) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			logger.Error("Failed to close resource", "error", err)
		}
	}
	b.closers = nil
}

// Container 서버가 사용하는 서비스 묶음
type Container struct {
	*Base

	Config *config.Config

	Queue        *distributed.WaitingQueue
	Pointers     *distributed.PointerStore
	Locks        *distributed.RedisLockManager
	Coordinator  *distributed.MatchmakingCoordinator
	TicketEvents *distributed.TicketEventStream
	Hub          *websocket.Hub

	JWT          *jwtutil.JWTManager
	MatchLimiter *ratelimit.RedisRateLimiter
	DevLimiter   *ratelimit.RateLimiter
	Metrics      *telemetry.MatchmakingMetrics

	Matchmaking *service.MatchmakingService
	Trigger     *service.MatchTrigger
	Users       *service.UserService
	Dev         *service.DevService
	TicketSweep *service.StalenessSweep
	LobbySweep  *service.StalenessSweep

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// New 연결을 열고 전체 서비스를 조립
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	base, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c, err := Assemble(cfg, base, logger.L())
	if err != nil {
		base.Close(ctx)
		return nil, err
	}
	return c, nil
}

// Assemble 이미 열린 자원으로 서비스 조립
func Assemble(cfg *config.Config, base *Base, log *zap.Logger) (*Container, error) {
	if base == nil || base.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	metrics, err := telemetry.NewMatchmakingMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	client := base.Redis
	c := &Container{
		Base:         base,
		Config:       cfg,
		Queue:        distributed.NewWaitingQueue(client, cfg.TicketTTL),
		Pointers:     distributed.NewPointerStore(client),
		Locks:        distributed.NewRedisLockManager(client),
		Coordinator:  distributed.NewMatchmakingCoordinator(client, log.Named("coordinator")),
		TicketEvents: distributed.NewTicketEventStream(client, log.Named("ticket_stream"), cfg.TriggerMinIdle),
		Hub:          websocket.NewHub(log.Named("hub")),
		JWT:          jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration),
		MatchLimiter: ratelimit.NewRedisRateLimiter(client, ratelimit.RedisRateLimiterConfig{
			KeyPrefix:    "ratelimit:match:",
			DefaultLimit: cfg.MatchRateLimit,
			Window:       time.Minute,
		}),
		DevLimiter: ratelimit.NewRateLimiter(devRateCapacity, time.Minute),
		Metrics:    metrics,
	}

	notifier := service.CoordinatorNotifier{Coordinator: c.Coordinator}
	lobbies := service.NewLobbyFactory(base.Stores.Lobbies)

	var events service.TicketEventPublisher
	if cfg.TriggerEnabled {
		events = c.TicketEvents
	}

	c.Matchmaking = service.NewMatchmakingService(service.MatchmakingDeps{
		Queue:    c.Queue,
		Pointers: c.Pointers,
		Tickets:  base.Stores.Tickets,
		Users:    base.Stores.Users,
		Lobbies:  lobbies,
		Events:   events,
		Notifier: notifier,
		Metrics:  metrics,
		Logger:   log,
	}, service.MatchmakingOptions{
		PresenceTTL: cfg.PresenceTTL,
		LobbyTTL:    cfg.LobbyTTL,
		ScanWindow:  cfg.ScanWindow,
	})

	c.Trigger = service.NewMatchTrigger(service.MatchTriggerDeps{
		Queue:    c.Queue,
		Tickets:  base.Stores.Tickets,
		Users:    base.Stores.Users,
		Lobbies:  lobbies,
		Notifier: notifier,
		Metrics:  metrics,
		Logger:   log,
		LobbyTTL: cfg.LobbyTTL,
	})

	c.Users = service.NewUserService(base.Stores.Users, c.Pointers)
	c.TicketSweep = service.NewTicketSweep(base.Stores.Tickets, c.Queue, cfg.TicketSweepInterval, cfg.TicketMaxAge, c.Locks, metrics, log)
	c.LobbySweep = service.NewLobbySweep(base.Stores.Lobbies, cfg.LobbySweepInterval, cfg.LobbyMaxAge, c.Locks, metrics, log)
	c.Dev = service.NewDevService(c.Matchmaking, c.Users, c.TicketSweep)

	return c, nil
}

// Start 백그라운드 작업 시작: 웹소켓 허브, 로비 알림 수신, 티켓 이벤트 소비, 정리 작업
func (c *Container) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.goRun("hub", func() error {
		c.Hub.Run(ctx)
		return nil
	})
	c.goRun("coordinator", func() error {
		return c.Coordinator.Start(ctx, func(event distributed.LobbyEvent) error {
			return c.DeliverLobbyEvent(ctx, event)
		})
	})
	if c.Config.TriggerEnabled {
		c.goRun("ticket_stream", func() error {
			return c.TicketEvents.Start(ctx, c.Trigger.HandleTicketCreated)
		})
	}

	c.TicketSweep.Start()
	c.LobbySweep.Start()
	c.DevLimiter.StartCleanup(devLimiterCleanupEvery)
}

func (c *Container) goRun(name string, fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Background worker exited", "worker", name, "error", err)
		}
	}()
}

// DeliverLobbyEvent 로비 알림을 이 인스턴스에 연결된 플레이어에게 전달
// 영속 기록을 읽지 못하면 이벤트 내용만으로 알린다.
func (c *Container) DeliverLobbyEvent(ctx context.Context, event distributed.LobbyEvent) error {
	lobby, err := c.Matchmaking.GetLobby(ctx, event.LobbyID)
	if err != nil || lobby == nil {
		lobby = &models.Lobby{
			ID:      event.LobbyID,
			Mode:    event.Mode,
			Players: event.Players,
		}
	}
	c.Hub.SendLobbyReady(lobby)
	return nil
}

// Close 백그라운드 작업을 멈추고 연결을 닫는다. 여러 번 호출해도 안전하다.
func (c *Container) Close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true

	if c.cancel != nil {
		c.cancel()
	}
	c.TicketSweep.Stop()
	c.LobbySweep.Stop()
	c.DevLimiter.Stop()
	c.TicketEvents.Stop()
	c.Coordinator.Stop()
	c.wg.Wait()
	c.Base.Close(ctx)
}
