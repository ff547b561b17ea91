package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/myhuemungusD/skatehubba/internal/models"
	"github.com/myhuemungusD/skatehubba/internal/repository"
	"github.com/myhuemungusD/skatehubba/pkg/distributed"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testTicketTTL = 120 * time.Second

// testClock 수동으로 움직이는 시계
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// recordingNotifier 알림받은 로비 기록
type recordingNotifier struct {
	lobbies []*models.Lobby
}

func (n *recordingNotifier) NotifyLobbyReady(_ context.Context, lobby *models.Lobby) error {
	n.lobbies = append(n.lobbies, lobby)
	return nil
}

type harness struct {
	mr       *miniredis.Miniredis
	client   *redis.Client
	queue    *distributed.WaitingQueue
	pointers *distributed.PointerStore
	tickets  *repository.MemoryTicketRepository
	lobbies  *repository.MemoryLobbyRepository
	users    *repository.MemoryUserRepository
	factory  *LobbyFactory
	notifier *recordingNotifier
	clock    *testClock
	svc      *MatchmakingService
	trigger  *MatchTrigger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := &harness{
		mr:       mr,
		client:   client,
		queue:    distributed.NewWaitingQueue(client, testTicketTTL),
		pointers: distributed.NewPointerStore(client),
		tickets:  repository.NewMemoryTicketRepository(),
		lobbies:  repository.NewMemoryLobbyRepository(),
		users:    repository.NewMemoryUserRepository(),
		notifier: &recordingNotifier{},
		clock:    &testClock{t: time.UnixMilli(1_700_000_000_000)},
	}
	h.factory = NewLobbyFactory(h.lobbies)
	h.factory.now = h.clock.now

	logger := zaptest.NewLogger(t)
	h.svc = NewMatchmakingService(MatchmakingDeps{
		Queue:    h.queue,
		Pointers: h.pointers,
		Tickets:  h.tickets,
		Users:    h.users,
		Lobbies:  h.factory,
		Notifier: h.notifier,
		Logger:   logger,
	}, MatchmakingOptions{})
	h.svc.now = h.clock.now

	h.trigger = NewMatchTrigger(MatchTriggerDeps{
		Queue:    h.queue,
		Tickets:  h.tickets,
		Users:    h.users,
		Lobbies:  h.factory,
		Notifier: h.notifier,
		Logger:   logger,
	})

	return h
}

// join 1ms씩 시계를 움직이며 등록
func (h *harness) join(t *testing.T, uid, mode string) *models.Ticket {
	t.Helper()

	h.clock.advance(time.Millisecond)
	ticket, err := h.svc.Join(context.Background(), JoinRequest{UID: uid, Mode: mode})
	require.NoError(t, err)
	return ticket
}

func (h *harness) queueMembers(t *testing.T) []string {
	t.Helper()

	members, err := h.queue.Members(context.Background())
	require.NoError(t, err)
	return members
}

func (h *harness) queueUIDs(t *testing.T) []string {
	t.Helper()

	var uids []string
	for _, m := range h.queueMembers(t) {
		ticket, err := models.DecodeTicket(m)
		require.NoError(t, err)
		uids = append(uids, ticket.UID)
	}
	return uids
}

func (h *harness) event(ticket *models.Ticket) distributed.TicketEvent {
	return distributed.TicketEvent{
		TicketID:  ticket.ID,
		UID:       ticket.UID,
		Mode:      ticket.Mode,
		CreatedAt: time.UnixMilli(ticket.CreatedAt),
	}
}
