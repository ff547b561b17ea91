package distributed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIncompleteClaim 페어 선점 요청에 필요한 값이 빠짐
var ErrIncompleteClaim = errors.New("incomplete pair claim")

// QueueEntry 대기열 멤버와 점수(등록 시각, unix ms)
type QueueEntry struct {
	Member string
	Score  float64
}

// PairClaim 한 쌍의 멤버를 원자적으로 선점하기 위한 요청
type PairClaim struct {
	LobbyID   string
	LobbyJSON string
	Players   [2]string // uid, 등록 순서
	Members   [2]string // 두 플레이어의 대기열 멤버
	Stale     []string  // 함께 정리할 같은 플레이어의 중복 멤버
	TTL       time.Duration
}

// joinScript uid당 하나의 멤버만 유지하며 대기열에 등록
var joinScript = redis.NewScript(`
local previous = redis.call('GET', KEYS[2])
local replaced = 0
if previous and previous ~= ARGV[1] then
	replaced = redis.call('ZREM', KEYS[1], previous)
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[3])
if replaced == 1 then
	return previous
end
return ''
`)

// claimScript 두 멤버가 모두 남아 있을 때만 제거하고 로비 포인터를 기록
// KEYS: queue, lobby, lobbyFor(a), lobbyFor(b), inMatch(a), inMatch(b), ticketFor(a), ticketFor(b)
// ARGV: lobbyJSON, ttlMs, lobbyID, memberA, memberB, stale...
var claimScript = redis.NewScript(`
local queue = KEYS[1]
if not redis.call('ZSCORE', queue, ARGV[4]) or not redis.call('ZSCORE', queue, ARGV[5]) then
	return 0
end

local removed = {}
for i = 4, #ARGV do
	redis.call('ZREM', queue, ARGV[i])
	removed[ARGV[i]] = true
end

redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
redis.call('SET', KEYS[3], ARGV[3], 'PX', ARGV[2])
redis.call('SET', KEYS[4], ARGV[3], 'PX', ARGV[2])
redis.call('SET', KEYS[5], '1', 'PX', ARGV[2])
redis.call('SET', KEYS[6], '1', 'PX', ARGV[2])

for k = 7, 8 do
	local pointer = redis.call('GET', KEYS[k])
	if pointer and removed[pointer] then
		redis.call('DEL', KEYS[k])
	end
end
return 1
`)

// WaitingQueue 등록 시각 순으로 정렬된 매칭 대기열 (Sorted Set)
// 멤버는 직렬화된 티켓 문자열이며 해석은 호출자가 담당한다.
type WaitingQueue struct {
	client    redis.UniversalClient
	queueKey  string
	ticketTTL time.Duration
}

// NewWaitingQueue 대기열 생성. ticketTTL은 ticketFor 포인터 만료 시간.
func NewWaitingQueue(client redis.UniversalClient, ticketTTL time.Duration) *WaitingQueue {
	return &WaitingQueue{
		client:    client,
		queueKey:  QueueKey,
		ticketTTL: ticketTTL,
	}
}

// Join 멤버 등록. 같은 uid의 이전 멤버가 남아 있으면 교체하고 그 멤버를 반환한다.
func (q *WaitingQueue) Join(ctx context.Context, uid, member string, score float64) (string, error) {
	replaced, err := joinScript.Run(ctx, q.client,
		[]string{q.queueKey, TicketForKey(uid)},
		member, score, q.ticketTTL.Milliseconds(),
	).Text()
	if err != nil {
		return "", fmt.Errorf("failed to join queue: %w", err)
	}
	return replaced, nil
}

// Oldest 가장 오래된 n개 멤버 조회 (제거하지 않음)
func (q *WaitingQueue) Oldest(ctx context.Context, n int64) ([]QueueEntry, error) {
	if n <= 0 {
		return nil, nil
	}

	zs, err := q.client.ZRangeWithScores(ctx, q.queueKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	entries := make([]QueueEntry, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, QueueEntry{Member: member, Score: z.Score})
	}
	return entries, nil
}

// Members 전체 멤버 조회
func (q *WaitingQueue) Members(ctx context.Context) ([]string, error) {
	members, err := q.client.ZRange(ctx, q.queueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	return members, nil
}

// Remove 멤버 제거. 없는 멤버는 무시한다.
func (q *WaitingQueue) Remove(ctx context.Context, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}

	removed, err := q.client.ZRem(ctx, q.queueKey, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to remove from queue: %w", err)
	}
	return removed, nil
}

// Has 멤버가 아직 대기열에 있는지 확인
func (q *WaitingQueue) Has(ctx context.Context, member string) (bool, error) {
	err := q.client.ZScore(ctx, q.queueKey, member).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check queue member: %w", err)
	}
	return true, nil
}

// ClaimPair 페어 선점. 두 멤버 중 하나라도 이미 빠졌으면 false (다른 매처가 이김).
func (q *WaitingQueue) ClaimPair(ctx context.Context, claim PairClaim) (bool, error) {
	if claim.LobbyID == "" || claim.LobbyJSON == "" ||
		claim.Members[0] == "" || claim.Members[1] == "" ||
		claim.Players[0] == "" || claim.Players[1] == "" {
		return false, ErrIncompleteClaim
	}

	ttl := claim.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	keys := []string{
		q.queueKey,
		LobbyKey(claim.LobbyID),
		LobbyForKey(claim.Players[0]),
		LobbyForKey(claim.Players[1]),
		InMatchKey(claim.Players[0]),
		InMatchKey(claim.Players[1]),
		TicketForKey(claim.Players[0]),
		TicketForKey(claim.Players[1]),
	}

	args := make([]interface{}, 0, 5+len(claim.Stale))
	args = append(args, claim.LobbyJSON, ttl.Milliseconds(), claim.LobbyID, claim.Members[0], claim.Members[1])
	for _, m := range claim.Stale {
		args = append(args, m)
	}

	won, err := claimScript.Run(ctx, q.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to claim pair: %w", err)
	}
	return won == 1, nil
}

// RemoveOlderThan cutoff 이전에 등록된 멤버 제거 (해석 불가 멤버 포함)
func (q *WaitingQueue) RemoveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	max := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	removed, err := q.client.ZRemRangeByScore(ctx, q.queueKey, "-inf", max).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to trim queue: %w", err)
	}
	return removed, nil
}

// Size 대기열 크기
func (q *WaitingQueue) Size(ctx context.Context) (int64, error) {
	size, err := q.client.ZCard(ctx, q.queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue size: %w", err)
	}
	return size, nil
}

// Add 점수를 지정해 멤버를 그대로 추가. 운영 도구와 테스트용.
func (q *WaitingQueue) Add(ctx context.Context, member string, score float64) error {
	if err := q.client.ZAdd(ctx, q.queueKey, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}
	return nil
}
