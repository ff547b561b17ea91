package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/models"
	"github.com/myhuemungusD/skatehubba/pkg/database"
)

// TicketRepository Postgres 매칭 티켓 저장소
type TicketRepository struct {
	db *database.DB
}

func NewTicketRepository(db *database.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketColumns = `id, uid, mode, skill, created_at`

func scanTicket(row interface{ Scan(...any) error }) (*models.Ticket, error) {
	t := &models.Ticket{}
	if err := row.Scan(&t.ID, &t.UID, &t.Mode, &t.Skill, &t.CreatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// Create 티켓 저장 (같은 ID 재시도는 무시)
func (r *TicketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	query := `
		INSERT INTO match_tickets (id, uid, mode, skill, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, ticket.ID, ticket.UID, ticket.Mode, ticket.Skill, ticket.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// Get ID로 티켓 조회
func (r *TicketRepository) Get(ctx context.Context, id string) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM match_tickets WHERE id = $1`

	t, err := scanTicket(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// Delete 티켓 삭제
func (r *TicketRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM match_tickets WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete ticket: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete ticket: %w", err)
	}
	return n > 0, nil
}

// DeleteByUID 플레이어의 모든 티켓 삭제
func (r *TicketRepository) DeleteByUID(ctx context.Context, uid string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM match_tickets WHERE uid = $1`, uid)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tickets: %w", err)
	}
	return result.RowsAffected()
}

// FindOldestOpponent 같은 모드의 다른 플레이어 중 가장 오래된 티켓
func (r *TicketRepository) FindOldestOpponent(ctx context.Context, mode, excludeUID string) (*models.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM match_tickets
		WHERE mode = $1
		  AND uid != $2
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	t, err := scanTicket(r.db.QueryRowContext(ctx, query, mode, excludeUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find opponent: %w", err)
	}
	return t, nil
}

// Oldest 등록 순으로 limit개 조회
func (r *TicketRepository) Oldest(ctx context.Context, limit int) ([]*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM match_tickets ORDER BY created_at ASC, id ASC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// DeleteOlderThan cutoff 이전 티켓 삭제
func (r *TicketRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM match_tickets WHERE created_at < $1`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep tickets: %w", err)
	}
	return result.RowsAffected()
}
