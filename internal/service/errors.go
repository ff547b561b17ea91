package service

import (
	"errors"
	"fmt"
)

// 매칭 서비스 에러. 핸들러는 errors.Is로 분류해 상태 코드를 정한다.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidPair         = errors.New("invalid pair")
	ErrMalformedQueueEntry = errors.New("malformed ticket")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrLobbyNotFound       = errors.New("lobby not found")

	// ErrRaceLost 다른 매처가 먼저 페어를 선점함. 호출자에게는 대기로 보인다.
	ErrRaceLost = errors.New("pair claimed by another matcher")
)

func invalidRequest(field string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidRequest, field)
}

// storeError 저장소 실패를 재시도 가능한 에러로 감싼다
func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
