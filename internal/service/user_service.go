package service

import (
	"context"
	"strings"

	"github.com/myhuemungusD/skatehubba/internal/models"
	"github.com/myhuemungusD/skatehubba/internal/repository"
)

// UserService 플레이어 레코드 조회와 로비 연결 해제
type UserService struct {
	users    repository.UserStore
	pointers PlayerPointers
}

func NewUserService(users repository.UserStore, pointers PlayerPointers) *UserService {
	return &UserService{
		users:    users,
		pointers: pointers,
	}
}

// GetByUID 플레이어 조회. 레코드가 없으면 빈 레코드를 반환한다.
func (s *UserService) GetByUID(ctx context.Context, uid string) (*models.User, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, invalidRequest("uid")
	}

	user, err := s.users.Get(ctx, uid)
	if err != nil {
		return nil, storeError("get user", err)
	}
	if user == nil {
		return &models.User{UID: uid}, nil
	}
	return user, nil
}

// Reset 로비 연결과 임시 포인터를 지운다
func (s *UserService) Reset(ctx context.Context, uid string) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return invalidRequest("uid")
	}

	if err := s.pointers.ClearLobbyFor(ctx, uid); err != nil {
		return storeError("clear lobby pointer", err)
	}
	if err := s.users.ClearLobby(ctx, uid); err != nil {
		return storeError("clear user lobby", err)
	}
	return nil
}
