package service

import (
	"context"
	"testing"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/models"
	"github.com/myhuemungusD/skatehubba/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFactory() (*LobbyFactory, *repository.MemoryLobbyRepository) {
	store := repository.NewMemoryLobbyRepository()
	factory := NewLobbyFactory(store)
	factory.now = func() time.Time { return time.UnixMilli(5000) }
	return factory, store
}

func TestLobbyFactory_FromTickets(t *testing.T) {
	factory, _ := newTestFactory()

	a := models.Ticket{ID: "t1", UID: "p1", Mode: "SKATE", Skill: 120, CreatedAt: 1}
	b := models.Ticket{ID: "t2", UID: "p2", Mode: "SKATE", Skill: 101, CreatedAt: 2}

	lobby, err := factory.FromTickets(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, lobby.Players)
	assert.Equal(t, "SKATE", lobby.Mode)
	assert.Equal(t, 111, lobby.SkillAverage)
	assert.Equal(t, int64(5000), lobby.CreatedAt)
	assert.Equal(t, models.LobbyStateReady, lobby.State)

	// 같은 쌍이면 순서와 상관없이 같은 ID
	swapped, err := factory.FromTickets(b, a)
	require.NoError(t, err)
	assert.Equal(t, lobby.ID, swapped.ID)
}

func TestLobbyFactory_InvalidPair(t *testing.T) {
	factory, store := newTestFactory()
	ctx := context.Background()

	tests := []struct {
		name    string
		players []string
	}{
		{"같은 플레이어", []string{"p1", "p1"}},
		{"빈 ID", []string{"p1", " "}},
		{"한 명", []string{"p1"}},
		{"세 명", []string{"p1", "p2", "p3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.Create(ctx, tt.players, "SKATE")
			assert.ErrorIs(t, err, ErrInvalidPair)
		})
	}

	_, err := factory.FromTickets(models.Ticket{UID: "p1"}, models.Ticket{UID: "p1"})
	assert.ErrorIs(t, err, ErrInvalidPair)
	assert.Equal(t, 0, store.Len())
}

func TestLobbyFactory_CreateAndPersist(t *testing.T) {
	factory, store := newTestFactory()
	ctx := context.Background()

	lobby, err := factory.Create(ctx, []string{"p1", "p2"}, "SKATE")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSkill, lobby.SkillAverage)
	assert.Equal(t, 1, store.Len())

	created, err := factory.Persist(ctx, lobby)
	require.NoError(t, err)
	assert.False(t, created)

	loaded, err := factory.Get(ctx, lobby.ID)
	require.NoError(t, err)
	assert.Equal(t, lobby.Players, loaded.Players)

	missing, err := factory.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
