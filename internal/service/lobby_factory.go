package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/models"
	"github.com/myhuemungusD/skatehubba/internal/repository"
)

// LobbyFactory 두 플레이어로 로비 레코드를 만들고 영속화
type LobbyFactory struct {
	store repository.LobbyStore
	now   func() time.Time
}

func NewLobbyFactory(store repository.LobbyStore) *LobbyFactory {
	return &LobbyFactory{store: store, now: time.Now}
}

// FromTickets 두 티켓으로 로비 구성. ID는 두 티켓 키로부터 결정된다.
// a가 먼저 등록된 티켓이어야 players 순서가 등록 순서가 된다.
func (f *LobbyFactory) FromTickets(a, b models.Ticket) (*models.Lobby, error) {
	if err := validatePair(a.UID, b.UID); err != nil {
		return nil, err
	}

	return &models.Lobby{
		ID:           models.PairLobbyID(a.Key(), b.Key()),
		Mode:         a.Mode,
		Players:      []string{a.UID, b.UID},
		SkillAverage: int(math.Round(float64(a.Skill+b.Skill) / 2)),
		CreatedAt:    f.now().UnixMilli(),
		State:        models.LobbyStateReady,
	}, nil
}

// Create 플레이어 ID 두 개로 로비를 만들고 저장
func (f *LobbyFactory) Create(ctx context.Context, players []string, mode string) (*models.Lobby, error) {
	if len(players) != 2 {
		return nil, fmt.Errorf("%w: exactly two players required", ErrInvalidPair)
	}
	if err := validatePair(players[0], players[1]); err != nil {
		return nil, err
	}

	now := f.now().UnixMilli()
	lobby := &models.Lobby{
		ID:           models.PairLobbyID(fmt.Sprintf("%s@%d", players[0], now), fmt.Sprintf("%s@%d", players[1], now)),
		Mode:         mode,
		Players:      []string{players[0], players[1]},
		SkillAverage: models.DefaultSkill,
		CreatedAt:    now,
		State:        models.LobbyStateReady,
	}

	if _, err := f.Persist(ctx, lobby); err != nil {
		return nil, err
	}
	return lobby, nil
}

// Persist 로비 저장. 이미 있으면 false.
func (f *LobbyFactory) Persist(ctx context.Context, lobby *models.Lobby) (bool, error) {
	created, err := f.store.Create(ctx, lobby)
	if err != nil {
		return false, storeError("create lobby", err)
	}
	return created, nil
}

// Get 영속 로비 조회
func (f *LobbyFactory) Get(ctx context.Context, id string) (*models.Lobby, error) {
	lobby, err := f.store.Get(ctx, id)
	if err != nil {
		return nil, storeError("get lobby", err)
	}
	return lobby, nil
}

func validatePair(a, b string) error {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return fmt.Errorf("%w: player id is empty", ErrInvalidPair)
	}
	if a == b {
		return fmt.Errorf("%w: a player cannot be matched with themselves", ErrInvalidPair)
	}
	return nil
}
