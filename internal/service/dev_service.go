package service

import (
	"context"
	"errors"
	"strings"

	"github.com/myhuemungusD/skatehubba/internal/models"
	"go.uber.org/zap"
)

const forceMatchWindow = 32

// ErrNotEnoughTickets 강제 매칭할 티켓 쌍이 없음
var ErrNotEnoughTickets = errors.New("not enough tickets")

// DevService 개발 환경 전용 조작 (production에서는 라우트가 등록되지 않음)
type DevService struct {
	*pairing
	accounts *UserService
	sweep    *StalenessSweep
	logger   *zap.Logger
}

func NewDevService(m *MatchmakingService, users *UserService, ticketSweep *StalenessSweep) *DevService {
	return &DevService{
		pairing:  m.pairing,
		accounts: users,
		sweep:    ticketSweep,
		logger:   m.logger.Named("dev"),
	}
}

// ForceMatch 영속 저장소에서 가장 오래된 매칭 가능 티켓 두 개를 묶는다
// 두 티켓의 대기열 멤버가 이미 선점되었으면 ErrRaceLost.
func (s *DevService) ForceMatch(ctx context.Context) (*models.Lobby, error) {
	tickets, err := s.tickets.Oldest(ctx, forceMatchWindow)
	if err != nil {
		return nil, storeError("list tickets", err)
	}

	decoded := make([]*candidate, 0, len(tickets))
	for _, t := range tickets {
		c, err := candidateFromTicket(t)
		if err != nil {
			continue
		}
		decoded = append(decoded, &c)
	}

	head, partner := pickPair(decoded)
	if head == nil {
		return nil, ErrNotEnoughTickets
	}
	return s.claim(ctx, sourceDev, *head, *partner, nil)
}

// FakeLobby 대기열을 거치지 않고 로비를 만들고 두 플레이어에 연결
func (s *DevService) FakeLobby(ctx context.Context, players []string, mode string) (*models.Lobby, error) {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		mode = "classic"
	}

	lobby, err := s.lobbies.Create(ctx, players, mode)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, lobby, nil); err != nil {
		return nil, err
	}

	s.logger.Info("Fake lobby created", zap.String("lobby_id", lobby.ID), zap.Strings("players", lobby.Players))
	s.notify(ctx, lobby)
	return lobby, nil
}

// ResetUser 플레이어의 로비 연결 해제
func (s *DevService) ResetUser(ctx context.Context, uid string) error {
	return s.accounts.Reset(ctx, uid)
}

// CleanupTickets 모든 영속 티켓과 대기열 멤버 삭제
func (s *DevService) CleanupTickets(ctx context.Context) (int64, error) {
	removed, err := s.sweep.RunOlderThan(ctx, 0)
	if err != nil {
		return removed, err
	}
	s.logger.Info("Tickets cleaned up", zap.Int64("removed", removed))
	return removed, nil
}
