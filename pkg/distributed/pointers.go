package distributed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// PointerStore 플레이어별 TTL 포인터 (ticketFor, presence, lobbyFor, inMatch, lobby)
type PointerStore struct {
	client redis.UniversalClient
}

// NewPointerStore PointerStore 생성
func NewPointerStore(client redis.UniversalClient) *PointerStore {
	return &PointerStore{client: client}
}

func (s *PointerStore) get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// TicketFor uid가 현재 대기열에 올린 멤버
func (s *PointerStore) TicketFor(ctx context.Context, uid string) (string, bool, error) {
	return s.get(ctx, TicketForKey(uid))
}

// LobbyFor uid가 배정된 로비 ID
func (s *PointerStore) LobbyFor(ctx context.Context, uid string) (string, bool, error) {
	return s.get(ctx, LobbyForKey(uid))
}

// Lobby 로비 레코드 JSON
func (s *PointerStore) Lobby(ctx context.Context, lobbyID string) (string, bool, error) {
	return s.get(ctx, LobbyKey(lobbyID))
}

// Presence uid 접속 신호
func (s *PointerStore) Presence(ctx context.Context, uid string) (string, bool, error) {
	return s.get(ctx, PresenceKey(uid))
}

// InMatch uid 매치 중 여부
func (s *PointerStore) InMatch(ctx context.Context, uid string) (bool, error) {
	_, ok, err := s.get(ctx, InMatchKey(uid))
	return ok, err
}

// SetPresence 접속 신호 기록 (덮어쓰기, TTL 갱신)
func (s *PointerStore) SetPresence(ctx context.Context, uid, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, PresenceKey(uid), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

// ScanPresence 살아 있는 접속 신호 전체 조회 (uid -> 값)
func (s *PointerStore) ScanPresence(ctx context.Context) (map[string]string, error) {
	result := make(map[string]string)

	iter := s.client.Scan(ctx, 0, presencePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		value, ok, err := s.get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			result[strings.TrimPrefix(key, presencePrefix)] = value
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan presence: %w", err)
	}
	return result, nil
}

// ClearPlayer uid의 ticketFor, presence, lobbyFor, inMatch 포인터 삭제
func (s *PointerStore) ClearPlayer(ctx context.Context, uid string) error {
	err := s.client.Del(ctx,
		TicketForKey(uid),
		PresenceKey(uid),
		LobbyForKey(uid),
		InMatchKey(uid),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to clear pointers: %w", err)
	}
	return nil
}

// ClearLobbyFor 더 이상 존재하지 않는 로비를 가리키는 포인터 정리
func (s *PointerStore) ClearLobbyFor(ctx context.Context, uid string) error {
	if err := s.client.Del(ctx, LobbyForKey(uid), InMatchKey(uid)).Err(); err != nil {
		return fmt.Errorf("failed to clear lobby pointer: %w", err)
	}
	return nil
}
