package distributed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStream(t *testing.T) (*TicketEventStream, *redis.Client) {
	t.Helper()

	_, client := setupRedisClient(t)
	stream := NewTicketEventStream(client, zaptest.NewLogger(t), 0)
	require.NoError(t, stream.EnsureGroup(context.Background()))
	return stream, client
}

func TestTicketEventStream_PublishAndProcess(t *testing.T) {
	stream, _ := newTestStream(t)
	ctx := context.Background()

	require.NoError(t, stream.Publish(ctx, TicketEvent{TicketID: "t1", UID: "p1", Mode: "SKATE"}))
	require.NoError(t, stream.Publish(ctx, TicketEvent{TicketID: "t2", UID: "p2", Mode: "SKATE"}))

	var seen []string
	handled, err := stream.ProcessOnce(ctx, -1, func(_ context.Context, event TicketEvent) error {
		seen = append(seen, event.TicketID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, handled)
	assert.Equal(t, []string{"t1", "t2"}, seen)

	pending, err := stream.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)

	// 새 메시지가 없으면 기다리지 않고 돌아온다
	handled, err = stream.ProcessOnce(ctx, -1, func(context.Context, TicketEvent) error {
		t.Fatal("no message expected")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, handled)
}

func TestTicketEventStream_FailedHandlerIsRedelivered(t *testing.T) {
	stream, _ := newTestStream(t)
	ctx := context.Background()

	require.NoError(t, stream.Publish(ctx, TicketEvent{TicketID: "t1", UID: "p1"}))

	handled, err := stream.ProcessOnce(ctx, -1, func(context.Context, TicketEvent) error {
		return errors.New("store unavailable")
	})
	require.NoError(t, err)
	assert.Equal(t, 0, handled)

	pending, err := stream.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	var redelivered []string
	handled, err = stream.Reclaim(ctx, func(_ context.Context, event TicketEvent) error {
		redelivered = append(redelivered, event.TicketID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, handled)
	assert.Equal(t, []string{"t1"}, redelivered)

	pending, err = stream.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestTicketEventStream_DeadLettersAfterDeliveryLimit(t *testing.T) {
	stream, _ := newTestStream(t)
	stream.maxDeliveries = 3
	ctx := context.Background()

	require.NoError(t, stream.Publish(ctx, TicketEvent{TicketID: "t1", UID: "p1"}))

	calls := 0
	failing := func(context.Context, TicketEvent) error {
		calls++
		return errors.New("store unavailable")
	}

	_, err := stream.ProcessOnce(ctx, -1, failing)
	require.NoError(t, err)

	// 커서가 한 바퀴 돌 때까지 여러 번 회수할 수 있다
	for i := 0; i < 10; i++ {
		_, err := stream.Reclaim(ctx, failing)
		require.NoError(t, err)

		pending, err := stream.Pending(ctx)
		require.NoError(t, err)
		if pending == 0 {
			break
		}
	}

	pending, err := stream.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
	assert.LessOrEqual(t, calls, 3)

	dead, err := stream.DeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
}

func TestTicketEventStream_DropsUndecodableMessages(t *testing.T) {
	stream, client := newTestStream(t)
	ctx := context.Background()

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: ticketStreamKey,
		Values: map[string]interface{}{ticketStreamField: "not json"},
	}).Err())

	handled, err := stream.ProcessOnce(ctx, -1, func(context.Context, TicketEvent) error {
		t.Fatal("handler must not see undecodable events")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, handled)

	pending, err := stream.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestTicketEventStream_EnsureGroupIsIdempotent(t *testing.T) {
	stream, _ := newTestStream(t)
	assert.NoError(t, stream.EnsureGroup(context.Background()))
}

func TestTicketEventStream_StartStop(t *testing.T) {
	stream, _ := newTestStream(t)
	stream.block = 50 * time.Millisecond
	ctx := context.Background()

	received := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- stream.Start(ctx, func(_ context.Context, event TicketEvent) error {
			received <- event.TicketID
			return nil
		})
	}()

	require.NoError(t, stream.Publish(ctx, TicketEvent{TicketID: "t1", UID: "p1"}))

	select {
	case id := <-received:
		assert.Equal(t, "t1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not consumed")
	}

	stream.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
