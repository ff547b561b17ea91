package models

import (
	"encoding/json"
	"fmt"
)

type LobbyState string

const (
	LobbyStateReady LobbyState = "ready"
)

// Lobby 매칭된 두 플레이어의 게임 방
type Lobby struct {
	ID           string     `json:"lobbyId" db:"id"`
	Mode         string     `json:"mode" db:"mode"`
	Players      []string   `json:"players" db:"players"`
	SkillAverage int        `json:"skillAverage" db:"skill_average"`
	CreatedAt    int64      `json:"createdAt" db:"created_at"` // unix ms
	State        LobbyState `json:"state" db:"state"`
}

// HasPlayer uid가 로비 참가자인지 확인
func (l *Lobby) HasPlayer(uid string) bool {
	for _, p := range l.Players {
		if p == uid {
			return true
		}
	}
	return false
}

// EncodeLobby 로비를 임시 저장소용 JSON으로 직렬화
func EncodeLobby(l *Lobby) (string, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("failed to encode lobby: %w", err)
	}
	return string(data), nil
}

// DecodeLobby 임시 저장소의 로비 JSON 해석
func DecodeLobby(raw string) (*Lobby, error) {
	var l Lobby
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return nil, fmt.Errorf("failed to decode lobby: %w", err)
	}
	if l.ID == "" || len(l.Players) != 2 {
		return nil, fmt.Errorf("failed to decode lobby: incomplete record")
	}
	return &l, nil
}
