package repository

import (
	"context"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/models"
)

// 영속 저장소 계약. 조회 결과가 없으면 (nil, nil)을 반환한다.
// Postgres, MongoDB, 메모리 구현이 같은 의미를 따른다.

// TicketStore 영속 매칭 티켓
type TicketStore interface {
	Create(ctx context.Context, ticket *models.Ticket) error
	Get(ctx context.Context, id string) (*models.Ticket, error)
	// Delete 없으면 false, 에러 아님
	Delete(ctx context.Context, id string) (bool, error)
	DeleteByUID(ctx context.Context, uid string) (int64, error)
	// FindOldestOpponent mode가 같고 uid가 다른 가장 오래된 티켓
	FindOldestOpponent(ctx context.Context, mode, excludeUID string) (*models.Ticket, error)
	Oldest(ctx context.Context, limit int) ([]*models.Ticket, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LobbyStore 영속 로비
type LobbyStore interface {
	// Create 같은 ID가 이미 있으면 false, 에러 아님
	Create(ctx context.Context, lobby *models.Lobby) (bool, error)
	Get(ctx context.Context, id string) (*models.Lobby, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserStore 플레이어 레코드의 로비 역참조
type UserStore interface {
	Get(ctx context.Context, uid string) (*models.User, error)
	// SetLobby 레코드가 없으면 생성
	SetLobby(ctx context.Context, uid, lobbyID string) error
	// ClearLobby 레코드가 없으면 아무것도 하지 않음
	ClearLobby(ctx context.Context, uid string) error
}

// Stores 한 백엔드의 저장소 묶음
type Stores struct {
	Tickets TicketStore
	Lobbies LobbyStore
	Users   UserStore
}
