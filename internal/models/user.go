package models

import "time"

// User 플레이어 레코드. 매칭되면 로비를 가리키는 역참조를 가진다.
type User struct {
	UID       string    `json:"uid" db:"uid"`
	Handle    string    `json:"handle,omitempty" db:"handle"`
	LobbyID   *string   `json:"lobbyId" db:"lobby_id"`
	InMatch   bool      `json:"inMatch" db:"in_match"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
