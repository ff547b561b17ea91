package service

import (
	"context"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/repository"
	"github.com/myhuemungusD/skatehubba/pkg/distributed"
	"github.com/myhuemungusD/skatehubba/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MatchTrigger 티켓 생성 이벤트마다 영속 저장소에서 상대를 찾아 매칭
// 이벤트는 최소 1회 전달되므로 같은 이벤트를 여러 번 처리해도 결과가 같아야 한다.
type MatchTrigger struct {
	*pairing
}

// MatchTriggerDeps MatchTrigger 의존성
type MatchTriggerDeps struct {
	Queue    TicketQueue
	Tickets  repository.TicketStore
	Users    repository.UserStore
	Lobbies  *LobbyFactory
	Notifier LobbyNotifier
	Metrics  *telemetry.MatchmakingMetrics
	Logger   *zap.Logger
	LobbyTTL time.Duration
}

func NewMatchTrigger(deps MatchTriggerDeps) *MatchTrigger {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.LobbyTTL
	if ttl <= 0 {
		ttl = defaultLobbyTTL
	}

	return &MatchTrigger{
		pairing: &pairing{
			queue:    deps.Queue,
			tickets:  deps.Tickets,
			users:    deps.Users,
			lobbies:  deps.Lobbies,
			notifier: deps.Notifier,
			metrics:  deps.Metrics,
			lobbyTTL: ttl,
			logger:   logger.Named("match_trigger"),
		},
	}
}

// HandleTicketCreated 새 티켓과 같은 모드의 가장 오래된 다른 플레이어 티켓을 매칭
// 티켓이 이미 처리되었거나 상대가 없으면 아무것도 하지 않는다.
// 에러를 반환하면 이벤트가 재전달된다.
func (t *MatchTrigger) HandleTicketCreated(ctx context.Context, event distributed.TicketEvent) error {
	ctx, span := telemetry.Tracer().Start(ctx, "matchmaking.trigger")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", event.TicketID))

	ticket, err := t.tickets.Get(ctx, event.TicketID)
	if err != nil {
		return storeError("get ticket", err)
	}
	if ticket == nil {
		t.logger.Debug("Ticket already retired", zap.String("ticket_id", event.TicketID))
		return nil
	}

	own, err := candidateFromTicket(ticket)
	if err != nil {
		t.logger.Warn("Skipping undecodable ticket",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
		return nil
	}

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		opponent, err := t.tickets.FindOldestOpponent(ctx, ticket.Mode, ticket.UID)
		if err != nil {
			return storeError("find opponent", err)
		}
		if opponent == nil {
			t.logger.Debug("No opponent yet",
				zap.String("ticket_id", ticket.ID),
				zap.String("mode", ticket.Mode))
			return nil
		}

		other, err := candidateFromTicket(opponent)
		if err != nil {
			t.logger.Warn("Skipping undecodable ticket",
				zap.String("ticket_id", opponent.ID),
				zap.Error(err))
			return nil
		}

		// players 순서는 등록 순서
		a, b := other, own
		if ticket.CreatedAt < opponent.CreatedAt ||
			(ticket.CreatedAt == opponent.CreatedAt && ticket.ID < opponent.ID) {
			a, b = own, other
		}

		_, err = t.claim(ctx, sourceTrigger, a, b, nil)
		if !isRaceLost(err) {
			return err
		}

		retry, err := t.retireOrphan(ctx, own, other)
		if err != nil || !retry {
			return err
		}
	}

	t.logger.Warn("Trigger gave up after repeated orphan opponents", zap.String("ticket_id", ticket.ID))
	return nil
}

// retireOrphan 선점에 진 뒤 상대 티켓이 대기열 멤버 없이 남은 고아인지 확인
// 고아면 영속 티켓을 지우고 다음 상대로 재시도하도록 true를 반환한다.
func (t *MatchTrigger) retireOrphan(ctx context.Context, own, other candidate) (bool, error) {
	queued, err := t.queue.Has(ctx, own.member)
	if err != nil {
		return false, storeError("check queue member", err)
	}
	if !queued {
		// 대기열 매처나 다른 트리거가 이미 처리함
		return false, nil
	}

	queued, err = t.queue.Has(ctx, other.member)
	if err != nil {
		return false, storeError("check queue member", err)
	}
	if queued {
		return false, nil
	}

	if _, err := t.tickets.Delete(ctx, other.ticket.ID); err != nil {
		return false, storeError("delete orphan ticket", err)
	}
	t.logger.Info("Retired orphan ticket",
		zap.String("ticket_id", other.ticket.ID),
		zap.String("uid", other.ticket.UID))
	return true, nil
}
