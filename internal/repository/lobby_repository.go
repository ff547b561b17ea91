package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/myhuemungusD/skatehubba/internal/models"
	"github.com/myhuemungusD/skatehubba/pkg/database"
)

// LobbyRepository Postgres 로비 저장소
type LobbyRepository struct {
	db *database.DB
}

func NewLobbyRepository(db *database.DB) *LobbyRepository {
	return &LobbyRepository{db: db}
}

// Create 로비 저장. 같은 ID가 있으면 기존 레코드를 유지한다.
func (r *LobbyRepository) Create(ctx context.Context, lobby *models.Lobby) (bool, error) {
	query := `
		INSERT INTO lobbies (id, mode, players, skill_average, created_at, state)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		lobby.ID,
		lobby.Mode,
		pq.Array(lobby.Players),
		lobby.SkillAverage,
		lobby.CreatedAt,
		string(lobby.State),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create lobby: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to create lobby: %w", err)
	}
	return n > 0, nil
}

// Get ID로 로비 조회
func (r *LobbyRepository) Get(ctx context.Context, id string) (*models.Lobby, error) {
	query := `
		SELECT id, mode, players, skill_average, created_at, state
		FROM lobbies
		WHERE id = $1
	`

	lobby := &models.Lobby{}
	var state string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&lobby.ID,
		&lobby.Mode,
		pq.Array(&lobby.Players),
		&lobby.SkillAverage,
		&lobby.CreatedAt,
		&state,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lobby: %w", err)
	}

	lobby.State = models.LobbyState(state)
	return lobby, nil
}

// DeleteOlderThan cutoff 이전 로비 삭제
func (r *LobbyRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM lobbies WHERE created_at < $1`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep lobbies: %w", err)
	}
	return result.RowsAffected()
}
