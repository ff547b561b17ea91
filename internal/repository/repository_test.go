package repository

import (
	"context"
	"testing"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 모든 백엔드가 따라야 하는 저장소 계약
func runStoreContract(t *testing.T, stores Stores) {
	t.Run("tickets", func(t *testing.T) { testTicketStore(t, stores.Tickets) })
	t.Run("lobbies", func(t *testing.T) { testLobbyStore(t, stores.Lobbies) })
	t.Run("users", func(t *testing.T) { testUserStore(t, stores.Users) })
}

func testTicketStore(t *testing.T, store TicketStore) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	tickets := []*models.Ticket{
		{ID: "t1", UID: "p1", Mode: "SKATE", Skill: 100, CreatedAt: base.UnixMilli()},
		{ID: "t2", UID: "p2", Mode: "SKATE", Skill: 140, CreatedAt: base.Add(time.Second).UnixMilli()},
		{ID: "t3", UID: "p3", Mode: "HORSE", Skill: 90, CreatedAt: base.Add(2 * time.Second).UnixMilli()},
		{ID: "t4", UID: "p1", Mode: "SKATE", Skill: 100, CreatedAt: base.Add(3 * time.Second).UnixMilli()},
	}
	for _, ticket := range tickets {
		require.NoError(t, store.Create(ctx, ticket))
	}

	// 같은 ID 재생성은 기존 레코드 유지
	require.NoError(t, store.Create(ctx, &models.Ticket{ID: "t1", UID: "other", Mode: "SKATE", CreatedAt: 1}))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *tickets[0], *got)

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	opponent, err := store.FindOldestOpponent(ctx, "SKATE", "p1")
	require.NoError(t, err)
	require.NotNil(t, opponent)
	assert.Equal(t, "t2", opponent.ID)

	opponent, err = store.FindOldestOpponent(ctx, "HORSE", "p3")
	require.NoError(t, err)
	assert.Nil(t, opponent)

	oldest, err := store.Oldest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, oldest, 2)
	assert.Equal(t, "t1", oldest[0].ID)
	assert.Equal(t, "t2", oldest[1].ID)

	deleted, err := store.Delete(ctx, "t2")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, "t2")
	require.NoError(t, err)
	assert.False(t, deleted)

	n, err := store.DeleteByUID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.DeleteOlderThan(ctx, base.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := store.Oldest(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func testLobbyStore(t *testing.T, store LobbyStore) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	lobby := &models.Lobby{
		ID:           "lobby-1",
		Mode:         "SKATE",
		Players:      []string{"p1", "p2"},
		SkillAverage: 120,
		CreatedAt:    base.UnixMilli(),
		State:        models.LobbyStateReady,
	}

	created, err := store.Create(ctx, lobby)
	require.NoError(t, err)
	assert.True(t, created)

	// 같은 로비를 다시 만들어도 하나만 존재
	again := *lobby
	again.SkillAverage = 1
	created, err = store.Create(ctx, &again)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := store.Get(ctx, "lobby-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, lobby, got)

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := store.DeleteOlderThan(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = store.DeleteOlderThan(ctx, base.Add(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testUserStore(t *testing.T, store UserStore) {
	ctx := context.Background()

	// 없는 플레이어 해제는 아무 일도 하지 않음
	require.NoError(t, store.ClearLobby(ctx, "ghost"))
	ghost, err := store.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, ghost)

	require.NoError(t, store.SetLobby(ctx, "p1", "lobby-1"))

	user, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, user)
	require.NotNil(t, user.LobbyID)
	assert.Equal(t, "lobby-1", *user.LobbyID)
	assert.True(t, user.InMatch)

	require.NoError(t, store.SetLobby(ctx, "p1", "lobby-2"))
	user, err = store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "lobby-2", *user.LobbyID)

	require.NoError(t, store.ClearLobby(ctx, "p1"))
	user, err = store.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Nil(t, user.LobbyID)
	assert.False(t, user.InMatch)
}

func TestMemoryStores(t *testing.T) {
	runStoreContract(t, NewMemoryStores())
}
