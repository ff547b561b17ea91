package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/models"
	"github.com/myhuemungusD/skatehubba/pkg/distributed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchmakingService_JoinValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  JoinRequest
	}{
		{name: "uid 없음", req: JoinRequest{Mode: "SKATE"}},
		{name: "공백 uid", req: JoinRequest{UID: "   ", Mode: "SKATE"}},
		{name: "mode 없음", req: JoinRequest{UID: "p1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Join(ctx, tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	assert.Empty(t, h.queueMembers(t))
	assert.Equal(t, 0, h.tickets.Len())
}

func TestMatchmakingService_JoinWritesQueueAndDurableTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	skill := 140
	ticket, err := h.svc.Join(ctx, JoinRequest{UID: "p1", Mode: "SKATE", Skill: &skill})
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, 140, ticket.Skill)

	members := h.queueMembers(t)
	require.Len(t, members, 1)

	pointer, ok, err := h.pointers.TicketFor(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, members[0], pointer)

	stored, err := h.tickets.Get(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, *ticket, *stored)

	encoded, err := models.EncodeTicket(*stored)
	require.NoError(t, err)
	assert.Equal(t, members[0], encoded)
}

func TestMatchmakingService_JoinDefaultSkill(t *testing.T) {
	h := newHarness(t)

	ticket := h.join(t, "p1", "SKATE")
	assert.Equal(t, models.DefaultSkill, ticket.Skill)
}

func TestMatchmakingService_JoinReplacesLiveTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.join(t, "p1", "SKATE")
	second := h.join(t, "p1", "SKATE")

	assert.Equal(t, []string{"p1"}, h.queueUIDs(t))
	assert.Equal(t, 1, h.tickets.Len())

	old, err := h.tickets.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, old)

	current, err := h.tickets.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.NotNil(t, current)
}

func TestMatchmakingService_JoinClearsPreviousLobby(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.join(t, "p1", "SKATE")
	h.join(t, "p2", "SKATE")
	result, err := h.svc.Match(ctx)
	require.NoError(t, err)
	require.Equal(t, models.MatchStatusMatched, result.Status)

	h.join(t, "p1", "SKATE")

	_, ok, err := h.pointers.LobbyFor(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	user, err := h.users.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Nil(t, user.LobbyID)
	assert.False(t, user.InMatch)
}

// Scenario A
func TestMatchmakingService_MatchTwoPlayersInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.join(t, "p1", "SKATE")
	h.join(t, "p2", "SKATE")

	result, err := h.svc.Match(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusMatched, result.Status)
	assert.Equal(t, []string{"p1", "p2"}, result.Players)
	assert.NotEmpty(t, result.LobbyID)

	lobby, err := h.lobbies.Get(ctx, result.LobbyID)
	require.NoError(t, err)
	require.NotNil(t, lobby)
	assert.Equal(t, models.LobbyStateReady, lobby.State)
	assert.Equal(t, "SKATE", lobby.Mode)
	assert.Equal(t, models.DefaultSkill, lobby.SkillAverage)

	for _, uid := range []string{"p1", "p2"} {
		user, err := h.users.Get(ctx, uid)
		require.NoError(t, err)
		require.NotNil(t, user)
		require.NotNil(t, user.LobbyID)
		assert.Equal(t, result.LobbyID, *user.LobbyID)
		assert.True(t, user.InMatch)

		lobbyID, ok, err := h.pointers.LobbyFor(ctx, uid)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, result.LobbyID, lobbyID)

		_, ok, err = h.pointers.TicketFor(ctx, uid)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	assert.Equal(t, 0, h.tickets.Len())
	require.Len(t, h.notifier.lobbies, 1)
	assert.Equal(t, result.LobbyID, h.notifier.lobbies[0].ID)
}

// Scenario B
func TestMatchmakingService_MatchSinglePlayerWaits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.svc.Match(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusWaiting, result.Status)

	h.join(t, "p1", "SKATE")

	result, err = h.svc.Match(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusWaiting, result.Status)
	assert.Empty(t, result.Players)
	assert.Equal(t, []string{"p1"}, h.queueUIDs(t))
}

// Scenario C
func TestMatchmakingService_CancelBeforeOpponentJoins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.join(t, "p1", "SKATE")
	require.NoError(t, h.svc.Cancel(ctx, "p1", ""))
	h.join(t, "p2", "SKATE")

	result, err := h.svc.Match(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusWaiting, result.Status)
	assert.Equal(t, []string{"p2"}, h.queueUIDs(t))
}

// Scenario D. 포인터가 만료되어 같은 uid가 두 번 들어간 경우
func TestMatchmakingService_DuplicateJoinNeverSelfMatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.join(t, "p1", "SKATE")
	h.mr.FastForward(testTicketTTL + time.Second)
	h.join(t, "p1", "SKATE")
	h.join(t, "p2", "SKATE")

	require.Equal(t, []string{"p1", "p1", "p2"}, h.queueUIDs(t))

	result, err := h.svc.Match(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusMatched, result.Status)
	assert.Equal(t, []string{"p1", "p2"}, result.Players)

	// 남은 p1 중복은 선점 시 함께 정리됨
	assert.Empty(t, h.queueMembers(t))
	assert.Equal(t, 0, h.tickets.Len())

	result, err = h.svc.Match(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusWaiting, result.Status)
}

// 포인터 만료 후 재등록한 플레이어의 취소는 이전 멤버까지 제거해야 한다
func TestMatchmakingService_CancelRemovesDuplicateAfterPointerExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.join(t, "p1", "SKATE")
	h.mr.FastForward(testTicketTTL + time.Second)
	h.join(t, "p1", "SKATE")
	require.Equal(t, []string{"p1", "p1"}, h.queueUIDs(t))

	require.NoError(t, h.svc.Cancel(ctx, "p1", ""))
	assert.Empty(t, h.queueMembers(t))
	assert.Equal(t, 0, h.tickets.Len())

	h.join(t, "p2", "SKATE")
	result, err := h.svc.Match(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusWaiting, result.Status)
	assert.Equal(t, []string{"p2"}, h.queueUIDs(t))
	assert.Equal(t, 0, h.lobbies.Len())
}

func TestMatchmakingService_FIFOAcrossRepeatedMatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	uids := []string{"a", "b", "c", "d", "e", "f"}
	for _, uid := range uids {
		h.join(t, uid, "SKATE")
	}

	var pairs [][]string
	for i := 0; i < 3; i++ {
		result, err := h.svc.Match(ctx)
		require.NoError(t, err)
		require.Equal(t, models.MatchStatusMatched, result.Status)
		pairs = append(pairs, result.Players)
	}

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e", "f"}}, pairs)
	assert.Empty(t, h.queueMembers(t))
}

func TestMatchmakingService_MatchSkipsOtherModes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.join(t, "a", "SKATE")
	h.join(t, "b", "HORSE")
	h.join(t, "c", "SKATE")

	result, err := h.svc.Match(ctx)
	require.NoError(t, err)
	require.Equal(t, models.MatchStatusMatched, result.Status)
	assert.Equal(t, []string{"a", "c"}, result.Players)
	assert.Equal(t, []string{"b"}, h.queueUIDs(t))
}

func TestMatchmakingService_PartnerBeyondScanWindowWaits(t *testing.T) {
	h := newHarness(t)
	h.svc.opts.ScanWindow = 2
	ctx := context.Background()

	h.join(t, "a", "SKATE")
	h.join(t, "b", "HORSE")
	h.join(t, "c", "SKATE")

	result, err := h.svc.Match(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusWaiting, result.Status)

	// 같은 모드 짝은 HORSE 앞자리가 빠지면 창 안으로 들어온다
	require.NoError(t, h.svc.Cancel(ctx, "b", ""))
	result, err = h.svc.Match(ctx)
	require.NoError(t, err)
	require.Equal(t, models.MatchStatusMatched, result.Status)
	assert.Equal(t, []string{"a", "c"}, result.Players)
}

func TestMatchmakingService_SameUIDOnlyWaits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i, id := range []string{"t1", "t2"} {
		score := int64(i + 1)
		member, err := models.EncodeTicket(models.Ticket{ID: id, UID: "solo", Mode: "SKATE", Skill: 100, CreatedAt: score})
		require.NoError(t, err)
		require.NoError(t, h.queue.Add(ctx, member, float64(score)))
	}

	result, err := h.svc.Match(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusWaiting, result.Status)
	assert.Len(t, h.queueMembers(t), 2)
}

func TestMatchmakingService_MatchRemovesExactlyThePair(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// 세 티켓이 같은 점수를 가짐
	var members []string
	for _, uid := range []string{"p1", "p2", "p3"} {
		member, err := models.EncodeTicket(models.Ticket{ID: "t-" + uid, UID: uid, Mode: "SKATE", Skill: 100, CreatedAt: 1000})
		require.NoError(t, err)
		require.NoError(t, h.queue.Add(ctx, member, 1000))
		members = append(members, member)
	}

	before := h.queueMembers(t)
	result, err := h.svc.Match(ctx)
	require.NoError(t, err)
	require.Equal(t, models.MatchStatusMatched, result.Status)

	after := h.queueMembers(t)
	require.Len(t, after, 1)
	assert.Equal(t, before[2], after[0])

	leftover, err := models.DecodeTicket(after[0])
	require.NoError(t, err)
	assert.NotContains(t, result.Players, leftover.UID)
	assert.Contains(t, members, after[0])
}

func TestMatchmakingService_MalformedHeadAborts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.queue.Add(ctx, "{not json", 1))
	h.join(t, "p1", "SKATE")
	h.join(t, "p2", "SKATE")

	_, err := h.svc.Match(ctx)
	assert.ErrorIs(t, err, ErrMalformedQueueEntry)
	assert.Len(t, h.queueMembers(t), 3)
	assert.Contains(t, h.queueMembers(t), "{not json")
	assert.Equal(t, 0, h.lobbies.Len())
}

func TestMatchmakingService_MalformedDeepEntryIsSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.join(t, "p1", "SKATE")
	h.join(t, "p2", "HORSE")
	require.NoError(t, h.queue.Add(ctx, `{"uid":""}`, float64(h.clock.now().UnixMilli()+1)))
	h.clock.advance(time.Millisecond)
	h.join(t, "p3", "SKATE")

	result, err := h.svc.Match(ctx)
	require.NoError(t, err)
	require.Equal(t, models.MatchStatusMatched, result.Status)
	assert.Equal(t, []string{"p1", "p3"}, result.Players)
	assert.Contains(t, h.queueMembers(t), `{"uid":""}`)
}

func TestMatchmakingService_CancelIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ticket := h.join(t, "p1", "SKATE")
	require.NoError(t, h.svc.Heartbeat(ctx, PresenceRequest{UID: "p1"}))

	require.NoError(t, h.svc.Cancel(ctx, "p1", ticket.ID))
	require.NoError(t, h.svc.Cancel(ctx, "p1", ticket.ID))
	require.NoError(t, h.svc.Cancel(ctx, "never-joined", ""))

	assert.Empty(t, h.queueMembers(t))
	assert.Equal(t, 0, h.tickets.Len())
	for _, key := range []string{
		distributed.TicketForKey("p1"),
		distributed.PresenceKey("p1"),
		distributed.LobbyForKey("p1"),
		distributed.InMatchKey("p1"),
	} {
		assert.False(t, h.mr.Exists(key), key)
	}

	assert.ErrorIs(t, h.svc.Cancel(ctx, "", ""), ErrInvalidRequest)
}

func TestMatchmakingService_CancelWithoutPointerScansQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.join(t, "p1", "SKATE")
	h.join(t, "p2", "SKATE")
	require.NoError(t, h.queue.Add(ctx, "garbage", 0))
	h.mr.Del(distributed.TicketForKey("p1"))

	require.NoError(t, h.svc.Cancel(ctx, "p1", ""))

	members := h.queueMembers(t)
	require.Len(t, members, 2)
	assert.Equal(t, "garbage", members[0])
	p2, err := models.DecodeTicket(members[1])
	require.NoError(t, err)
	assert.Equal(t, "p2", p2.UID)
}

func TestMatchmakingService_CancelRaceWithMatch(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t)
		ctx := context.Background()

		h.join(t, "a", "SKATE")
		h.join(t, "b", "SKATE")
		h.join(t, "c", "SKATE")

		var (
			wg       sync.WaitGroup
			result   *models.MatchResult
			matchErr error
			cancelEr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			result, matchErr = h.svc.Match(ctx)
		}()
		go func() {
			defer wg.Done()
			cancelEr = h.svc.Cancel(ctx, "a", "")
		}()
		wg.Wait()

		require.NoError(t, matchErr)
		require.NoError(t, cancelEr)
		require.Equal(t, models.MatchStatusMatched, result.Status)

		// a는 대기열에도 포인터에도 남지 않는다
		assert.NotContains(t, h.queueUIDs(t), "a")
		assert.False(t, h.mr.Exists(distributed.TicketForKey("a")))
		assert.Equal(t, 1, h.lobbies.Len())

		switch {
		case result.Players[0] == "a":
			assert.Equal(t, []string{"a", "b"}, result.Players)
			assert.Equal(t, []string{"c"}, h.queueUIDs(t))
		default:
			assert.Equal(t, []string{"b", "c"}, result.Players)
			assert.Empty(t, h.queueMembers(t))
		}
	}
}

func TestMatchmakingService_HeartbeatAndPresence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	skill := 250
	require.NoError(t, h.svc.Heartbeat(ctx, PresenceRequest{UID: "p1", Mode: "SKATE", Skill: &skill}))
	require.NoError(t, h.svc.Heartbeat(ctx, PresenceRequest{UID: "p2"}))
	assert.ErrorIs(t, h.svc.Heartbeat(ctx, PresenceRequest{}), ErrInvalidRequest)

	list, err := h.svc.Presence(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	byUID := map[string]models.Presence{}
	for _, p := range list {
		byUID[p.UID] = p
	}
	assert.Equal(t, "SKATE", byUID["p1"].Mode)
	assert.Equal(t, 250, byUID["p1"].Skill)
	assert.Equal(t, models.DefaultSkill, byUID["p2"].Skill)

	h.mr.FastForward(defaultPresenceTTL + time.Second)

	list, err = h.svc.Presence(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMatchmakingService_PollReturnsOwnLobby(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.join(t, "p1", "SKATE")

	result, err := h.svc.Poll(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusWaiting, result.Status)

	h.join(t, "p2", "SKATE")

	result, err = h.svc.Poll(ctx, "p2")
	require.NoError(t, err)
	require.Equal(t, models.MatchStatusMatched, result.Status)

	// 상대도 같은 로비를 받는다
	again, err := h.svc.Poll(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, result.LobbyID, again.LobbyID)
	assert.Equal(t, 1, h.lobbies.Len())
}

func TestMatchmakingService_PollForUnrelatedPlayerWaits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.join(t, "p1", "SKATE")
	h.join(t, "p2", "SKATE")
	h.join(t, "p3", "HORSE")

	result, err := h.svc.Poll(ctx, "p3")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusWaiting, result.Status)
	assert.Equal(t, 1, h.lobbies.Len())
}

func TestMatchmakingService_PollRecoversUncommittedLobby(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.join(t, "p1", "SKATE")
	b := h.join(t, "p2", "SKATE")

	// 선점만 되고 영속 기록 전에 멈춘 상태
	lobby, err := h.factory.FromTickets(*a, *b)
	require.NoError(t, err)
	lobbyJSON, err := models.EncodeLobby(lobby)
	require.NoError(t, err)
	memberA, _ := models.EncodeTicket(*a)
	memberB, _ := models.EncodeTicket(*b)

	won, err := h.queue.ClaimPair(ctx, distributed.PairClaim{
		LobbyID:   lobby.ID,
		LobbyJSON: lobbyJSON,
		Players:   [2]string{"p1", "p2"},
		Members:   [2]string{memberA, memberB},
		TTL:       time.Hour,
	})
	require.NoError(t, err)
	require.True(t, won)
	require.Equal(t, 0, h.lobbies.Len())

	result, err := h.svc.Poll(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusMatched, result.Status)
	assert.Equal(t, lobby.ID, result.LobbyID)

	stored, err := h.lobbies.Get(ctx, lobby.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	for _, uid := range []string{"p1", "p2"} {
		user, err := h.users.Get(ctx, uid)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.True(t, user.InMatch)
	}
}

func TestMatchmakingService_PollDropsDanglingLobbyPointer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.mr.Set(distributed.LobbyForKey("p1"), "gone"))

	result, err := h.svc.Poll(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusWaiting, result.Status)
	assert.False(t, h.mr.Exists(distributed.LobbyForKey("p1")))
}

func TestMatchmakingService_GetLobby(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.join(t, "p1", "SKATE")
	h.join(t, "p2", "SKATE")
	result, err := h.svc.Match(ctx)
	require.NoError(t, err)

	lobby, err := h.svc.GetLobby(ctx, result.LobbyID)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, lobby.Players)

	_, err = h.svc.GetLobby(ctx, "missing")
	assert.ErrorIs(t, err, ErrLobbyNotFound)
}

func TestMatchmakingService_StoreUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.mr.SetError("connection refused")

	_, err := h.svc.Join(ctx, JoinRequest{UID: "p1", Mode: "SKATE"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = h.svc.Match(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	assert.ErrorIs(t, h.svc.Cancel(ctx, "p1", ""), ErrStoreUnavailable)
}
