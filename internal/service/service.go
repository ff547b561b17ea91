package service

import (
	"context"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/models"
	"github.com/myhuemungusD/skatehubba/pkg/distributed"
)

// TicketQueue 임시 대기열 (distributed.WaitingQueue)
type TicketQueue interface {
	Join(ctx context.Context, uid, member string, score float64) (string, error)
	Oldest(ctx context.Context, n int64) ([]distributed.QueueEntry, error)
	Members(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, members ...string) (int64, error)
	Has(ctx context.Context, member string) (bool, error)
	ClaimPair(ctx context.Context, claim distributed.PairClaim) (bool, error)
	RemoveOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Size(ctx context.Context) (int64, error)
}

// PlayerPointers 플레이어별 TTL 포인터 (distributed.PointerStore)
type PlayerPointers interface {
	TicketFor(ctx context.Context, uid string) (string, bool, error)
	LobbyFor(ctx context.Context, uid string) (string, bool, error)
	Lobby(ctx context.Context, lobbyID string) (string, bool, error)
	SetPresence(ctx context.Context, uid, value string, ttl time.Duration) error
	ScanPresence(ctx context.Context) (map[string]string, error)
	ClearPlayer(ctx context.Context, uid string) error
	ClearLobbyFor(ctx context.Context, uid string) error
}

// TicketEventPublisher 티켓 생성 이벤트 발행 (distributed.TicketEventStream)
type TicketEventPublisher interface {
	Publish(ctx context.Context, event distributed.TicketEvent) error
}

// LobbyNotifier 로비 생성 알림
type LobbyNotifier interface {
	NotifyLobbyReady(ctx context.Context, lobby *models.Lobby) error
}

// CoordinatorNotifier MatchmakingCoordinator를 LobbyNotifier로 사용
type CoordinatorNotifier struct {
	Coordinator *distributed.MatchmakingCoordinator
}

func (n CoordinatorNotifier) NotifyLobbyReady(ctx context.Context, lobby *models.Lobby) error {
	return n.Coordinator.PublishLobbyReady(ctx, lobby.ID, lobby.Mode, lobby.Players)
}
