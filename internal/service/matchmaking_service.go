package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/myhuemungusD/skatehubba/internal/models"
	"github.com/myhuemungusD/skatehubba/internal/repository"
	"github.com/myhuemungusD/skatehubba/pkg/distributed"
	"github.com/myhuemungusD/skatehubba/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	defaultScanWindow  = 32
	defaultPresenceTTL = 30 * time.Second
	defaultLobbyTTL    = time.Hour
	maxClaimAttempts   = 3
)

// JoinRequest 매칭 대기 등록 요청
type JoinRequest struct {
	UID   string `json:"uid"`
	Mode  string `json:"mode"`
	Skill *int   `json:"skill"`
}

// PresenceRequest 접속 신호
type PresenceRequest struct {
	UID   string `json:"uid"`
	Mode  string `json:"mode"`
	Skill *int   `json:"skill"`
}

// MatchmakingOptions 매칭 동작 설정
type MatchmakingOptions struct {
	PresenceTTL time.Duration
	LobbyTTL    time.Duration
	ScanWindow  int64 // match()가 한 번에 읽는 대기열 앞부분 크기
}

// MatchmakingDeps MatchmakingService 의존성
type MatchmakingDeps struct {
	Queue    TicketQueue
	Pointers PlayerPointers
	Tickets  repository.TicketStore
	Users    repository.UserStore
	Lobbies  *LobbyFactory
	Events   TicketEventPublisher // 없으면 트리거 경로가 비활성
	Notifier LobbyNotifier
	Metrics  *telemetry.MatchmakingMetrics
	Logger   *zap.Logger
}

// MatchmakingService 대기열 등록, 취소, 접속 신호, 매칭, 폴링
type MatchmakingService struct {
	*pairing
	pointers PlayerPointers
	events   TicketEventPublisher
	opts     MatchmakingOptions
	now      func() time.Time
}

func NewMatchmakingService(deps MatchmakingDeps, opts MatchmakingOptions) *MatchmakingService {
	if opts.PresenceTTL <= 0 {
		opts.PresenceTTL = defaultPresenceTTL
	}
	if opts.LobbyTTL <= 0 {
		opts.LobbyTTL = defaultLobbyTTL
	}
	if opts.ScanWindow < 2 {
		opts.ScanWindow = defaultScanWindow
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MatchmakingService{
		pairing: &pairing{
			queue:    deps.Queue,
			tickets:  deps.Tickets,
			users:    deps.Users,
			lobbies:  deps.Lobbies,
			notifier: deps.Notifier,
			metrics:  deps.Metrics,
			lobbyTTL: opts.LobbyTTL,
			logger:   logger.Named("matchmaking"),
		},
		pointers: deps.Pointers,
		events:   deps.Events,
		opts:     opts,
		now:      time.Now,
	}
}

// Join 플레이어를 대기열에 등록. 같은 uid의 살아 있는 티켓은 교체된다.
func (s *MatchmakingService) Join(ctx context.Context, req JoinRequest) (*models.Ticket, error) {
	uid := strings.TrimSpace(req.UID)
	mode := strings.TrimSpace(req.Mode)
	if uid == "" {
		return nil, invalidRequest("uid")
	}
	if mode == "" {
		return nil, invalidRequest("mode")
	}

	ticket := &models.Ticket{
		ID:        uuid.NewString(),
		UID:       uid,
		Mode:      mode,
		Skill:     models.DefaultSkill,
		CreatedAt: s.now().UnixMilli(),
	}
	if req.Skill != nil {
		ticket.Skill = *req.Skill
	}

	member, err := models.EncodeTicket(*ticket)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	// 새 대기는 이전 로비와의 연결을 끊는다
	if err := s.pointers.ClearLobbyFor(ctx, uid); err != nil {
		return nil, storeError("clear lobby pointer", err)
	}

	replaced, err := s.queue.Join(ctx, uid, member, float64(ticket.CreatedAt))
	if err != nil {
		return nil, storeError("join queue", err)
	}
	if replaced != "" {
		s.retireReplaced(ctx, replaced)
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, storeError("create ticket", err)
	}
	if err := s.users.ClearLobby(ctx, uid); err != nil {
		return nil, storeError("clear user lobby", err)
	}

	s.metrics.Joined(ctx, mode)
	s.logger.Info("Player joined queue",
		zap.String("uid", uid),
		zap.String("mode", mode),
		zap.String("ticket_id", ticket.ID))

	if s.events != nil {
		event := distributed.TicketEvent{
			TicketID:  ticket.ID,
			UID:       uid,
			Mode:      mode,
			CreatedAt: time.UnixMilli(ticket.CreatedAt),
		}
		if err := s.events.Publish(ctx, event); err != nil {
			// 대기열 경로만으로도 매칭되므로 실패해도 등록은 유지
			s.logger.Warn("Failed to publish ticket event", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	return ticket, nil
}

func (s *MatchmakingService) retireReplaced(ctx context.Context, member string) {
	old, err := models.DecodeTicket(member)
	if err != nil || old.ID == "" {
		return
	}
	if _, err := s.tickets.Delete(ctx, old.ID); err != nil {
		s.logger.Warn("Failed to delete replaced ticket", zap.String("ticket_id", old.ID), zap.Error(err))
	}
}

// Cancel 플레이어를 매칭에서 제거. 여러 번 호출해도 같은 결과.
func (s *MatchmakingService) Cancel(ctx context.Context, uid, ticketID string) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return invalidRequest("uid")
	}

	member, ok, err := s.pointers.TicketFor(ctx, uid)
	if err != nil {
		return storeError("read ticket pointer", err)
	}

	scanned := !ok
	if ok {
		if _, err := s.queue.Remove(ctx, member); err != nil {
			return storeError("remove queue member", err)
		}
	} else if err := s.removeByScan(ctx, uid); err != nil {
		return err
	}

	if err := s.pointers.ClearPlayer(ctx, uid); err != nil {
		return storeError("clear pointers", err)
	}

	deleted, err := s.tickets.DeleteByUID(ctx, uid)
	if err != nil {
		return storeError("delete tickets", err)
	}
	// 포인터가 만료된 뒤 다시 등록했다면 포인터가 모르는 이전 멤버가 남아 있다
	if !scanned && deleted > 1 {
		if err := s.removeByScan(ctx, uid); err != nil {
			return err
		}
	}
	if ticketID != "" {
		if _, err := s.tickets.Delete(ctx, ticketID); err != nil {
			return storeError("delete ticket", err)
		}
	}
	if err := s.users.ClearLobby(ctx, uid); err != nil {
		return storeError("clear user lobby", err)
	}

	s.metrics.Cancelled(ctx)
	s.logger.Info("Player cancelled matchmaking", zap.String("uid", uid))
	return nil
}

// removeByScan 포인터가 없을 때 전체 대기열을 훑어 uid의 멤버 제거
func (s *MatchmakingService) removeByScan(ctx context.Context, uid string) error {
	members, err := s.queue.Members(ctx)
	if err != nil {
		return storeError("scan queue", err)
	}

	var mine []string
	for _, m := range members {
		t, err := models.DecodeTicket(m)
		if err != nil {
			continue
		}
		if t.UID == uid {
			mine = append(mine, m)
		}
	}

	if _, err := s.queue.Remove(ctx, mine...); err != nil {
		return storeError("remove queue members", err)
	}
	return nil
}

// Heartbeat 접속 신호 갱신
func (s *MatchmakingService) Heartbeat(ctx context.Context, req PresenceRequest) error {
	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		return invalidRequest("uid")
	}

	presence := models.Presence{
		UID:   uid,
		Mode:  strings.TrimSpace(req.Mode),
		Skill: models.DefaultSkill,
		Seen:  s.now().UnixMilli(),
	}
	if req.Skill != nil {
		presence.Skill = *req.Skill
	}

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to encode presence: %w", err)
	}
	if err := s.pointers.SetPresence(ctx, uid, string(data), s.opts.PresenceTTL); err != nil {
		return storeError("set presence", err)
	}
	return nil
}

// Presence 살아 있는 접속 신호 전체
func (s *MatchmakingService) Presence(ctx context.Context) ([]models.Presence, error) {
	raw, err := s.pointers.ScanPresence(ctx)
	if err != nil {
		return nil, storeError("scan presence", err)
	}

	result := make([]models.Presence, 0, len(raw))
	for uid, value := range raw {
		var p models.Presence
		if err := json.Unmarshal([]byte(value), &p); err != nil {
			p = models.Presence{UID: uid}
		}
		result = append(result, p)
	}
	return result, nil
}

// Match 대기열 앞부분에서 한 쌍을 골라 로비 생성
// 두 명 미만이면 waiting. 앞의 두 멤버 중 해석 불가가 있으면 ErrMalformedQueueEntry이며 멤버는 그대로 둔다.
func (s *MatchmakingService) Match(ctx context.Context) (*models.MatchResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "matchmaking.match")
	defer span.End()

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		result, err := s.matchOnce(ctx)
		if isRaceLost(err) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		span.SetAttributes(attribute.String("matchmaking.status", string(result.Status)))
		return result, nil
	}

	return models.Waiting(), nil
}

func (s *MatchmakingService) matchOnce(ctx context.Context) (*models.MatchResult, error) {
	entries, err := s.queue.Oldest(ctx, s.opts.ScanWindow)
	if err != nil {
		return nil, storeError("read queue", err)
	}
	if len(entries) < 2 {
		return models.Waiting(), nil
	}

	decoded := make([]*candidate, len(entries))
	for i, e := range entries {
		t, err := models.DecodeTicket(e.Member)
		if err != nil {
			s.metrics.Malformed(ctx)
			if i < 2 {
				s.logger.Error("Malformed queue entry at head of queue",
					zap.Int("position", i),
					zap.String("member", e.Member))
				return nil, fmt.Errorf("%w: %v", ErrMalformedQueueEntry, err)
			}
			s.logger.Warn("Skipping malformed queue entry", zap.Int("position", i))
			continue
		}
		decoded[i] = &candidate{ticket: t, member: e.Member}
	}

	head, partner := pickPair(decoded)
	if head == nil {
		return models.Waiting(), nil
	}

	var stale []candidate
	for _, c := range decoded {
		if c == nil || c == head || c == partner {
			continue
		}
		if c.ticket.UID == head.ticket.UID || c.ticket.UID == partner.ticket.UID {
			stale = append(stale, *c)
		}
	}

	lobby, err := s.claim(ctx, sourceQueue, *head, *partner, stale)
	if err != nil {
		return nil, err
	}
	return models.Matched(lobby), nil
}

// pickPair 가장 오래된 티켓부터, 같은 모드의 다른 플레이어 중 가장 먼저 온 상대를 찾는다
func pickPair(decoded []*candidate) (*candidate, *candidate) {
	for i, head := range decoded {
		if head == nil {
			continue
		}
		for _, c := range decoded[i+1:] {
			if c == nil || c.ticket.UID == head.ticket.UID || c.ticket.Mode != head.ticket.Mode {
				continue
			}
			return head, c
		}
	}
	return nil, nil
}

// Poll 매칭 시작 또는 상태 확인. uid가 없으면 Match와 같다.
// uid가 있으면 자신의 로비를 먼저 확인하고, 없으면 매칭을 시도한 뒤 자신의 상태를 돌려준다.
func (s *MatchmakingService) Poll(ctx context.Context, uid string) (*models.MatchResult, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return s.Match(ctx)
	}

	if result, err := s.resume(ctx, uid); err != nil || result != nil {
		return result, err
	}

	result, err := s.Match(ctx)
	if err != nil {
		return nil, err
	}
	if result.Status == models.MatchStatusMatched {
		for _, p := range result.Players {
			if p == uid {
				return result, nil
			}
		}
	}

	// 다른 쌍이 매칭되었거나 트리거가 먼저 처리했을 수 있음
	if result, err := s.resume(ctx, uid); err != nil || result != nil {
		return result, err
	}
	return models.Waiting(), nil
}

// resume uid가 배정된 로비 조회. 영속 기록이 빠졌으면 임시 레코드로 복구한다.
func (s *MatchmakingService) resume(ctx context.Context, uid string) (*models.MatchResult, error) {
	lobbyID, ok, err := s.pointers.LobbyFor(ctx, uid)
	if err != nil {
		return nil, storeError("read lobby pointer", err)
	}
	if !ok {
		return nil, nil
	}

	lobby, err := s.lobbies.Get(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if lobby != nil {
		return models.Matched(lobby), nil
	}

	raw, ok, err := s.pointers.Lobby(ctx, lobbyID)
	if err != nil {
		return nil, storeError("read lobby record", err)
	}
	if ok {
		lobby, err = models.DecodeLobby(raw)
	}
	if !ok || err != nil {
		// 로비가 사라진 포인터
		if err := s.pointers.ClearLobbyFor(ctx, uid); err != nil {
			return nil, storeError("clear lobby pointer", err)
		}
		return nil, nil
	}

	if err := s.commit(ctx, lobby, nil); err != nil {
		return nil, err
	}
	s.logger.Info("Recovered lobby from ephemeral record",
		zap.String("lobby_id", lobby.ID),
		zap.String("uid", uid))
	s.notify(ctx, lobby)

	return models.Matched(lobby), nil
}

// GetLobby 로비 조회 (영속, 없으면 임시 레코드)
func (s *MatchmakingService) GetLobby(ctx context.Context, id string) (*models.Lobby, error) {
	lobby, err := s.lobbies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lobby != nil {
		return lobby, nil
	}

	raw, ok, err := s.pointers.Lobby(ctx, id)
	if err != nil {
		return nil, storeError("read lobby record", err)
	}
	if !ok {
		return nil, ErrLobbyNotFound
	}
	lobby, err = models.DecodeLobby(raw)
	if err != nil {
		return nil, ErrLobbyNotFound
	}
	return lobby, nil
}

// QueueSize 대기열 크기
func (s *MatchmakingService) QueueSize(ctx context.Context) (int64, error) {
	size, err := s.queue.Size(ctx)
	if err != nil {
		return 0, storeError("queue size", err)
	}
	return size, nil
}
