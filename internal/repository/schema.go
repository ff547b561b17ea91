package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/myhuemungusD/skatehubba/pkg/database"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema 테이블과 인덱스 생성 (여러 번 실행해도 안전)
func EnsureSchema(ctx context.Context, db *database.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// NewPostgresStores Postgres 저장소 묶음
func NewPostgresStores(db *database.DB) Stores {
	return Stores{
		Tickets: NewTicketRepository(db),
		Lobbies: NewLobbyRepository(db),
		Users:   NewUserRepository(db),
	}
}
