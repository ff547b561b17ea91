package service

import (
	"context"
	"errors"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/models"
	"github.com/myhuemungusD/skatehubba/internal/repository"
	"github.com/myhuemungusD/skatehubba/pkg/distributed"
	"github.com/myhuemungusD/skatehubba/pkg/telemetry"
	"go.uber.org/zap"
)

// 매칭 경로 이름 (메트릭, 로그)
const (
	sourceQueue   = "queue"
	sourceTrigger = "trigger"
	sourceDev     = "dev"
)

// candidate 대기열 멤버와 해석된 티켓
type candidate struct {
	ticket models.Ticket
	member string
}

func candidateFromTicket(t *models.Ticket) (candidate, error) {
	member, err := models.EncodeTicket(*t)
	if err != nil {
		return candidate{}, err
	}
	return candidate{ticket: *t, member: member}, nil
}

// pairing 대기열 매처와 영속 트리거가 공유하는 선점 및 확정 단계
// 두 경로 모두 WaitingQueue.ClaimPair 한 곳에서만 승자를 가린다.
type pairing struct {
	queue    TicketQueue
	tickets  repository.TicketStore
	users    repository.UserStore
	lobbies  *LobbyFactory
	notifier LobbyNotifier
	metrics  *telemetry.MatchmakingMetrics
	lobbyTTL time.Duration
	logger   *zap.Logger
}

// claim 두 후보를 원자적으로 선점한 뒤 영속 상태를 기록
// 선점에 실패하면 ErrRaceLost. 선점 후 영속 기록이 실패하면 로비와 에러를 함께 반환한다.
func (p *pairing) claim(ctx context.Context, source string, a, b candidate, stale []candidate) (*models.Lobby, error) {
	lobby, err := p.lobbies.FromTickets(a.ticket, b.ticket)
	if err != nil {
		return nil, err
	}

	lobbyJSON, err := models.EncodeLobby(lobby)
	if err != nil {
		return nil, err
	}

	claim := distributed.PairClaim{
		LobbyID:   lobby.ID,
		LobbyJSON: lobbyJSON,
		Players:   [2]string{a.ticket.UID, b.ticket.UID},
		Members:   [2]string{a.member, b.member},
		TTL:       p.lobbyTTL,
	}
	retired := []string{a.ticket.ID, b.ticket.ID}
	for _, s := range stale {
		claim.Stale = append(claim.Stale, s.member)
		retired = append(retired, s.ticket.ID)
	}

	won, err := p.queue.ClaimPair(ctx, claim)
	if err != nil {
		return nil, storeError("claim pair", err)
	}
	if !won {
		p.metrics.RaceLost(ctx, source)
		p.logger.Debug("Pair already claimed",
			zap.String("source", source),
			zap.String("lobby_id", lobby.ID))
		return nil, ErrRaceLost
	}

	if err := p.commit(ctx, lobby, retired); err != nil {
		p.logger.Error("Pair claimed but durable commit failed",
			zap.String("source", source),
			zap.String("lobby_id", lobby.ID),
			zap.Error(err))
		return lobby, err
	}

	p.metrics.Matched(ctx, source, lobby.Mode)
	p.logger.Info("Lobby created",
		zap.String("source", source),
		zap.String("lobby_id", lobby.ID),
		zap.Strings("players", lobby.Players),
		zap.String("mode", lobby.Mode))

	p.notify(ctx, lobby)
	return lobby, nil
}

// commit 로비 저장, 티켓 삭제, 플레이어 역참조 기록 (모두 재실행해도 안전)
func (p *pairing) commit(ctx context.Context, lobby *models.Lobby, ticketIDs []string) error {
	if _, err := p.lobbies.Persist(ctx, lobby); err != nil {
		return err
	}

	for _, id := range ticketIDs {
		if id == "" {
			continue
		}
		if _, err := p.tickets.Delete(ctx, id); err != nil {
			return storeError("delete ticket", err)
		}
	}

	for _, uid := range lobby.Players {
		if err := p.users.SetLobby(ctx, uid, lobby.ID); err != nil {
			return storeError("set user lobby", err)
		}
	}
	return nil
}

func (p *pairing) notify(ctx context.Context, lobby *models.Lobby) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyLobbyReady(ctx, lobby); err != nil {
		p.logger.Warn("Failed to publish lobby notification",
			zap.String("lobby_id", lobby.ID),
			zap.Error(err))
	}
}

// isRaceLost 선점 실패 여부
func isRaceLost(err error) bool {
	return errors.Is(err, ErrRaceLost)
}
