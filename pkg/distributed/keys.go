package distributed

import "fmt"

// 임시 저장소 키 레이아웃
const (
	QueueKey          = "queue"
	ticketForPrefix   = "ticketFor:"
	presencePrefix    = "presence:"
	lobbyForPrefix    = "lobbyFor:"
	inMatchPrefix     = "inMatch:"
	lobbyRecordPrefix = "lobby:"
)

// TicketForKey uid가 현재 대기열에 올린 멤버를 가리키는 키
func TicketForKey(uid string) string { return ticketForPrefix + uid }

// PresenceKey uid 접속 신호 키
func PresenceKey(uid string) string { return presencePrefix + uid }

// LobbyForKey uid가 배정된 로비 ID 키
func LobbyForKey(uid string) string { return lobbyForPrefix + uid }

// InMatchKey uid 매치 중 플래그 키
func InMatchKey(uid string) string { return inMatchPrefix + uid }

// LobbyKey 로비 레코드 키
func LobbyKey(lobbyID string) string { return lobbyRecordPrefix + lobbyID }

func lockKey(name string) string { return fmt.Sprintf("lock:%s", name) }
