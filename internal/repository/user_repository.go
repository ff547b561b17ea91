package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/myhuemungusD/skatehubba/internal/models"
	"github.com/myhuemungusD/skatehubba/pkg/database"
)

// UserRepository Postgres 플레이어 저장소
type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Get uid로 플레이어 조회
func (r *UserRepository) Get(ctx context.Context, uid string) (*models.User, error) {
	query := `
		SELECT uid, handle, lobby_id, in_match, updated_at
		FROM users
		WHERE uid = $1
	`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, uid).Scan(
		&user.UID,
		&user.Handle,
		&user.LobbyID,
		&user.InMatch,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // 사용자 없음
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// SetLobby 로비 역참조 기록 (없으면 생성)
func (r *UserRepository) SetLobby(ctx context.Context, uid, lobbyID string) error {
	query := `
		INSERT INTO users (uid, lobby_id, in_match, updated_at)
		VALUES ($1, $2, TRUE, NOW())
		ON CONFLICT (uid)
		DO UPDATE SET
			lobby_id = EXCLUDED.lobby_id,
			in_match = TRUE,
			updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, uid, lobbyID); err != nil {
		return fmt.Errorf("failed to set user lobby: %w", err)
	}
	return nil
}

// ClearLobby 로비 역참조 해제
func (r *UserRepository) ClearLobby(ctx context.Context, uid string) error {
	query := `
		UPDATE users
		SET lobby_id = NULL, in_match = FALSE, updated_at = NOW()
		WHERE uid = $1
	`
	if _, err := r.db.ExecContext(ctx, query, uid); err != nil {
		return fmt.Errorf("failed to clear user lobby: %w", err)
	}
	return nil
}
