package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// DefaultSkill 스킬 값이 없을 때 사용하는 기본값
const DefaultSkill = 100

// ErrMalformedTicket 대기열 멤버를 티켓으로 해석할 수 없음
var ErrMalformedTicket = errors.New("malformed ticket")

// lobbyNamespace 로비 ID 파생용 UUID 네임스페이스
var lobbyNamespace = uuid.MustParse("6f1d2c4e-5b8a-4e3f-9a7d-2c1b0e9f8a61")

// Ticket 매칭 대기 중인 플레이어 한 명의 요청
type Ticket struct {
	ID        string `json:"id,omitempty" db:"id"`
	UID       string `json:"uid" db:"uid"`
	Mode      string `json:"mode,omitempty" db:"mode"`
	Skill     int    `json:"skill" db:"skill"`
	CreatedAt int64  `json:"ts" db:"created_at"` // unix ms
}

// Key 티켓 식별자. 구버전 멤버처럼 id가 없으면 uid와 생성 시각으로 대신한다.
func (t Ticket) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return fmt.Sprintf("%s@%d", t.UID, t.CreatedAt)
}

// wireTicket 디코딩 시 필드 존재 여부를 확인하기 위한 형태
type wireTicket struct {
	ID        string   `json:"id"`
	UID       *string  `json:"uid"`
	Mode      string   `json:"mode"`
	Skill     *int     `json:"skill"`
	CreatedAt *float64 `json:"ts"`
}

// EncodeTicket 티켓을 대기열 멤버 문자열로 직렬화
// 같은 티켓은 항상 같은 문자열이 되므로 영속 저장소의 티켓에서 멤버를 다시 만들 수 있다.
func EncodeTicket(t Ticket) (string, error) {
	if strings.TrimSpace(t.UID) == "" {
		return "", fmt.Errorf("%w: empty uid", ErrMalformedTicket)
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode ticket: %w", err)
	}
	return string(data), nil
}

// DecodeTicket 대기열 멤버를 티켓으로 해석
func DecodeTicket(member string) (Ticket, error) {
	var w wireTicket
	if err := json.Unmarshal([]byte(member), &w); err != nil {
		return Ticket{}, fmt.Errorf("%w: %v", ErrMalformedTicket, err)
	}
	if w.UID == nil || strings.TrimSpace(*w.UID) == "" {
		return Ticket{}, fmt.Errorf("%w: missing uid", ErrMalformedTicket)
	}
	if w.CreatedAt == nil {
		return Ticket{}, fmt.Errorf("%w: missing ts", ErrMalformedTicket)
	}

	t := Ticket{
		ID:        w.ID,
		UID:       *w.UID,
		Mode:      w.Mode,
		Skill:     DefaultSkill,
		CreatedAt: int64(*w.CreatedAt),
	}
	if w.Skill != nil {
		t.Skill = *w.Skill
	}
	return t, nil
}

// PairLobbyID 두 식별자로부터 순서와 무관한 결정적 로비 ID 생성
func PairLobbyID(a, b string) string {
	keys := []string{a, b}
	sort.Strings(keys)
	return uuid.NewSHA1(lobbyNamespace, []byte(strings.Join(keys, "|"))).String()
}

// MatchStatus 매칭 시도 결과 상태
type MatchStatus string

const (
	MatchStatusWaiting MatchStatus = "waiting"
	MatchStatusMatched MatchStatus = "matched"
)

// MatchResult 매칭 또는 폴링 응답
type MatchResult struct {
	Status  MatchStatus `json:"status"`
	LobbyID string      `json:"lobbyId,omitempty"`
	Players []string    `json:"players,omitempty"`
}

// Waiting 대기 결과
func Waiting() *MatchResult {
	return &MatchResult{Status: MatchStatusWaiting}
}

// Matched 매칭 완료 결과
func Matched(lobby *Lobby) *MatchResult {
	return &MatchResult{
		Status:  MatchStatusMatched,
		LobbyID: lobby.ID,
		Players: append([]string(nil), lobby.Players...),
	}
}

// Presence 플레이어 접속 신호
type Presence struct {
	UID   string `json:"uid"`
	Mode  string `json:"mode,omitempty"`
	Skill int    `json:"skill,omitempty"`
	Seen  int64  `json:"seen"`
}
