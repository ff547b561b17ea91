package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/models"
)

// NewMemoryStores 프로세스 내 저장소 묶음 (로컬 개발, 테스트)
func NewMemoryStores() Stores {
	return Stores{
		Tickets: NewMemoryTicketRepository(),
		Lobbies: NewMemoryLobbyRepository(),
		Users:   NewMemoryUserRepository(),
	}
}

// MemoryTicketRepository 메모리 티켓 저장소
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]models.Ticket
}

func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: make(map[string]models.Ticket)}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *models.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tickets[ticket.ID]; !exists {
		r.tickets[ticket.ID] = *ticket
	}
	return nil
}

func (r *MemoryTicketRepository) Get(_ context.Context, id string) (*models.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tickets[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *MemoryTicketRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.tickets[id]
	delete(r.tickets, id)
	return ok, nil
}

func (r *MemoryTicketRepository) DeleteByUID(_ context.Context, uid string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, t := range r.tickets {
		if t.UID == uid {
			delete(r.tickets, id)
			n++
		}
	}
	return n, nil
}

// sorted 등록 순 (created_at, id)
func (r *MemoryTicketRepository) sorted() []models.Ticket {
	list := make([]models.Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt < list[j].CreatedAt
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func (r *MemoryTicketRepository) FindOldestOpponent(_ context.Context, mode, excludeUID string) (*models.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.sorted() {
		if t.Mode == mode && t.UID != excludeUID {
			return &t, nil
		}
	}
	return nil, nil
}

func (r *MemoryTicketRepository) Oldest(_ context.Context, limit int) ([]*models.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Ticket
	for _, t := range r.sorted() {
		if len(result) >= limit {
			break
		}
		t := t
		result = append(result, &t)
	}
	return result, nil
}

func (r *MemoryTicketRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit := cutoff.UnixMilli()
	var n int64
	for id, t := range r.tickets {
		if t.CreatedAt < limit {
			delete(r.tickets, id)
			n++
		}
	}
	return n, nil
}

// Len 저장된 티켓 수
func (r *MemoryTicketRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tickets)
}

// MemoryLobbyRepository 메모리 로비 저장소
type MemoryLobbyRepository struct {
	mu      sync.RWMutex
	lobbies map[string]models.Lobby
}

func NewMemoryLobbyRepository() *MemoryLobbyRepository {
	return &MemoryLobbyRepository{lobbies: make(map[string]models.Lobby)}
}

func (r *MemoryLobbyRepository) Create(_ context.Context, lobby *models.Lobby) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.lobbies[lobby.ID]; exists {
		return false, nil
	}
	stored := *lobby
	stored.Players = append([]string(nil), lobby.Players...)
	r.lobbies[lobby.ID] = stored
	return true, nil
}

func (r *MemoryLobbyRepository) Get(_ context.Context, id string) (*models.Lobby, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.lobbies[id]
	if !ok {
		return nil, nil
	}
	l.Players = append([]string(nil), l.Players...)
	return &l, nil
}

func (r *MemoryLobbyRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit := cutoff.UnixMilli()
	var n int64
	for id, l := range r.lobbies {
		if l.CreatedAt < limit {
			delete(r.lobbies, id)
			n++
		}
	}
	return n, nil
}

// Len 저장된 로비 수
func (r *MemoryLobbyRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lobbies)
}

// MemoryUserRepository 메모리 플레이어 저장소
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
	now   func() time.Time
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]models.User), now: time.Now}
}

func (r *MemoryUserRepository) Get(_ context.Context, uid string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[uid]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *MemoryUserRepository) SetLobby(_ context.Context, uid, lobbyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.users[uid]
	u.UID = uid
	id := lobbyID
	u.LobbyID = &id
	u.InMatch = true
	u.UpdatedAt = r.now()
	r.users[uid] = u
	return nil
}

func (r *MemoryUserRepository) ClearLobby(_ context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[uid]
	if !ok {
		return nil
	}
	u.LobbyID = nil
	u.InMatch = false
	u.UpdatedAt = r.now()
	r.users[uid] = u
	return nil
}
