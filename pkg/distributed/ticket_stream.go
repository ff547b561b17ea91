package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ticketStreamKey     = "matchTickets:created"
	ticketDeadLetterKey = "matchTickets:dead"
	ticketStreamGroup   = "match-trigger"
	ticketStreamField   = "event"
	ticketStreamMax     = 10000
	ticketBatchSize     = 16

	// 이 횟수를 넘게 전달된 메시지는 데드레터로 옮기고 확인 처리한다
	ticketMaxDeliveries = 5
)

// TicketEvent 영속 저장소에 티켓이 생성되었음을 알리는 이벤트
type TicketEvent struct {
	TicketID  string    `json:"ticketId"`
	UID       string    `json:"uid"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"createdAt"`
}

// TicketHandler 이벤트 처리 함수. 에러를 반환하면 메시지는 확인되지 않고 재전달된다.
type TicketHandler func(ctx context.Context, event TicketEvent) error

// TicketEventStream Redis Streams 컨슈머 그룹 기반 티켓 생성 이벤트 (최소 1회 전달)
type TicketEventStream struct {
	client   redis.UniversalClient
	logger   *zap.Logger
	stream   string
	group    string
	consumer string
	minIdle  time.Duration
	block    time.Duration

	deadLetter    string
	maxDeliveries int64

	cursorMu sync.Mutex
	cursor   string

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewTicketEventStream 스트림 생성. minIdle 이상 확인되지 않은 메시지는 다시 가져온다.
func NewTicketEventStream(client redis.UniversalClient, logger *zap.Logger, minIdle time.Duration) *TicketEventStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketEventStream{
		client:   client,
		logger:   logger,
		stream:   ticketStreamKey,
		group:    ticketStreamGroup,
		consumer: uuid.NewString(),
		minIdle:  minIdle,
		block:    2 * time.Second,

		deadLetter:    ticketDeadLetterKey,
		maxDeliveries: ticketMaxDeliveries,
		cursor:        "0-0",

		stopChan: make(chan struct{}),
	}
}

// EnsureGroup 컨슈머 그룹 생성 (이미 있으면 무시)
func (s *TicketEventStream) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Publish 티켓 생성 이벤트 발행
func (s *TicketEventStream) Publish(ctx context.Context, event TicketEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket event: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: ticketStreamMax,
		Approx: true,
		Values: map[string]interface{}{ticketStreamField: string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish ticket event: %w", err)
	}
	return nil
}

// Start 소비 루프. Stop 또는 ctx 취소까지 블록된다.
func (s *TicketEventStream) Start(ctx context.Context, handler TicketHandler) error {
	if err := s.EnsureGroup(ctx); err != nil {
		return err
	}

	s.logger.Info("Ticket event consumer started",
		zap.String("stream", s.stream),
		zap.String("consumer", s.consumer))

	for {
		select {
		case <-s.stopChan:
			s.logger.Info("Ticket event consumer stopped")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := s.Reclaim(ctx, handler); err != nil {
			s.logger.Warn("Failed to reclaim ticket events", zap.Error(err))
		}

		if _, err := s.ProcessOnce(ctx, s.block, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("Failed to read ticket events", zap.Error(err))

			select {
			case <-time.After(time.Second):
			case <-s.stopChan:
			case <-ctx.Done():
			}
		}
	}
}

// Stop 소비 루프 중지
func (s *TicketEventStream) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// ProcessOnce 새 메시지를 한 번 읽어 처리. block < 0 이면 기다리지 않는다.
func (s *TicketEventStream) ProcessOnce(ctx context.Context, block time.Duration, handler TicketHandler) (int, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    ticketBatchSize,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read ticket stream: %w", err)
	}

	handled := 0
	for _, stream := range streams {
		handled += s.handleMessages(ctx, stream.Messages, handler)
	}
	return handled, nil
}

// Reclaim 다른 컨슈머가 처리하지 못하고 minIdle 이상 지난 메시지를 가져와 처리
// 호출마다 이전 커서에서 이어 읽고, 전달 횟수가 한도를 넘은 메시지는 데드레터로 보낸다.
func (s *TicketEventStream) Reclaim(ctx context.Context, handler TicketHandler) (int, error) {
	s.cursorMu.Lock()
	start := s.cursor
	s.cursorMu.Unlock()

	messages, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.minIdle,
		Start:    start,
		Count:    ticketBatchSize,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim ticket events: %w", err)
	}

	// PEL을 끝까지 훑으면 "0-0"으로 돌아온다
	if next == "" {
		next = "0-0"
	}
	s.cursorMu.Lock()
	s.cursor = next
	s.cursorMu.Unlock()

	return s.handleMessages(ctx, s.dropExhausted(ctx, messages), handler), nil
}

// dropExhausted 전달 횟수가 한도를 넘은 메시지를 데드레터 스트림에 남기고 확인 처리
// 남은 메시지만 돌려준다. 전달 횟수를 읽지 못하면 모두 그대로 처리한다.
func (s *TicketEventStream) dropExhausted(ctx context.Context, messages []redis.XMessage) []redis.XMessage {
	if len(messages) == 0 || s.maxDeliveries <= 0 {
		return messages
	}

	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.stream,
		Group:  s.group,
		Start:  messages[0].ID,
		End:    messages[len(messages)-1].ID,
		Count:  int64(len(messages)),
	}).Result()
	if err != nil {
		s.logger.Warn("Failed to read delivery counts", zap.Error(err))
		return messages
	}

	deliveries := make(map[string]int64, len(pending))
	for _, p := range pending {
		deliveries[p.ID] = p.RetryCount
	}

	kept := messages[:0]
	for _, msg := range messages {
		count := deliveries[msg.ID]
		if count <= s.maxDeliveries {
			kept = append(kept, msg)
			continue
		}

		values := make(map[string]interface{}, len(msg.Values)+2)
		for k, v := range msg.Values {
			values[k] = v
		}
		values["messageId"] = msg.ID
		values["deliveries"] = count

		if err := s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: s.deadLetter,
			MaxLen: ticketStreamMax,
			Approx: true,
			Values: values,
		}).Err(); err != nil {
			// 데드레터 기록에 실패하면 다음 회수 때 다시 시도
			s.logger.Error("Failed to dead-letter ticket event",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			continue
		}

		s.logger.Error("Ticket event exceeded delivery limit, moved to dead letter",
			zap.String("message_id", msg.ID),
			zap.Int64("deliveries", count))
		s.ack(ctx, msg.ID)
	}
	return kept
}

// DeadLetters 데드레터 스트림 길이
func (s *TicketEventStream) DeadLetters(ctx context.Context) (int64, error) {
	n, err := s.client.XLen(ctx, s.deadLetter).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read dead letter stream: %w", err)
	}
	return n, nil
}

// Pending 확인되지 않은 메시지 수
func (s *TicketEventStream) Pending(ctx context.Context) (int64, error) {
	pending, err := s.client.XPending(ctx, s.stream, s.group).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read pending ticket events: %w", err)
	}
	return pending.Count, nil
}

func (s *TicketEventStream) handleMessages(ctx context.Context, messages []redis.XMessage, handler TicketHandler) int {
	handled := 0
	for _, msg := range messages {
		event, err := decodeTicketEvent(msg)
		if err != nil {
			// 해석할 수 없는 메시지는 재시도해도 소용없으므로 확인 처리
			s.logger.Error("Dropping undecodable ticket event",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			s.ack(ctx, msg.ID)
			continue
		}

		if err := handler(ctx, event); err != nil {
			s.logger.Warn("Ticket event handler failed, leaving for redelivery",
				zap.String("message_id", msg.ID),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
			continue
		}

		s.ack(ctx, msg.ID)
		handled++
	}
	return handled
}

func (s *TicketEventStream) ack(ctx context.Context, id string) {
	if err := s.client.XAck(ctx, s.stream, s.group, id).Err(); err != nil {
		s.logger.Error("Failed to ack ticket event", zap.String("message_id", id), zap.Error(err))
	}
}

func decodeTicketEvent(msg redis.XMessage) (TicketEvent, error) {
	raw, ok := msg.Values[ticketStreamField].(string)
	if !ok {
		return TicketEvent{}, fmt.Errorf("missing %q field", ticketStreamField)
	}

	var event TicketEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return TicketEvent{}, err
	}
	if event.TicketID == "" {
		return TicketEvent{}, errors.New("missing ticket id")
	}
	return event, nil
}
