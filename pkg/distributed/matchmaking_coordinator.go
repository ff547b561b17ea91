package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	LobbyEventReady = "lobby_ready"

	lobbyEventChannel = "matchmaking:lobbies"
)

// LobbyEvent 로비 생성 알림
type LobbyEvent struct {
	Type      string    `json:"type"`
	LobbyID   string    `json:"lobbyId"`
	Mode      string    `json:"mode"`
	Players   []string  `json:"players"`
	Origin    string    `json:"origin"` // 발행한 인스턴스
	Timestamp time.Time `json:"timestamp"`
}

// MatchmakingCoordinator Redis Pub/Sub 기반 인스턴스 간 로비 알림 전파
// 각 인스턴스는 자신에게 연결된 웹소켓 클라이언트에게만 전달한다.
type MatchmakingCoordinator struct {
	client     redis.UniversalClient
	logger     *zap.Logger
	instanceID string
	channel    string

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewMatchmakingCoordinator 조정자 생성
func NewMatchmakingCoordinator(client redis.UniversalClient, logger *zap.Logger) *MatchmakingCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchmakingCoordinator{
		client:     client,
		logger:     logger,
		instanceID: uuid.NewString(),
		channel:    lobbyEventChannel,
		stopChan:   make(chan struct{}),
	}
}

// InstanceID 인스턴스 고유 ID
func (c *MatchmakingCoordinator) InstanceID() string {
	return c.instanceID
}

// Start 알림 수신 시작. Stop 또는 ctx 취소까지 블록된다.
func (c *MatchmakingCoordinator) Start(ctx context.Context, handler func(event LobbyEvent) error) error {
	pubsub := c.client.Subscribe(ctx, c.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.logger.Info("Lobby event subscriber started",
		zap.String("instance_id", c.instanceID),
		zap.String("channel", c.channel))

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event LobbyEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				c.logger.Error("Failed to unmarshal lobby event", zap.Error(err))
				continue
			}

			if err := handler(event); err != nil {
				c.logger.Error("Failed to handle lobby event",
					zap.String("lobby_id", event.LobbyID),
					zap.Error(err))
			}

		case <-c.stopChan:
			c.logger.Info("Lobby event subscriber stopped")
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop 수신 중지
func (c *MatchmakingCoordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// PublishLobbyReady 로비 생성 알림 발행
func (c *MatchmakingCoordinator) PublishLobbyReady(ctx context.Context, lobbyID, mode string, players []string) error {
	event := LobbyEvent{
		Type:      LobbyEventReady,
		LobbyID:   lobbyID,
		Mode:      mode,
		Players:   players,
		Origin:    c.instanceID,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal lobby event: %w", err)
	}

	if err := c.client.Publish(ctx, c.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish lobby event: %w", err)
	}

	c.logger.Debug("Published lobby event",
		zap.String("lobby_id", lobbyID),
		zap.Strings("players", players))
	return nil
}
