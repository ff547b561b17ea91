package websocket

import (
	"context"
	"sync"

	"github.com/myhuemungusD/skatehubba/internal/models"
	"go.uber.org/zap"
)

const (
	// MessageTypeLobbyReady 로비 생성 알림
	MessageTypeLobbyReady = "lobby_ready"
)

// Hub 플레이어별 WebSocket 연결 관리
type Hub struct {
	// uid -> *Client (플레이어당 하나)
	clients map[string]*Client
	mu      sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	logger *zap.Logger
}

// Message WebSocket 메시지
type Message struct {
	UserID  string      `json:"-"` // 빈 문자열이면 전체
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// LobbyReadyMessage 로비 준비 완료 페이로드
type LobbyReadyMessage struct {
	LobbyID      string   `json:"lobbyId"`
	Mode         string   `json:"mode"`
	Players      []string `json:"players"`
	SkillAverage int      `json:"skillAverage,omitempty"`
}

// NewHub Hub 생성
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.Named("ws_hub"),
	}
}

// Run ctx가 끝날 때까지 등록, 해제, 전송 처리
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.dispatch(message)

		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 같은 플레이어의 이전 연결은 닫는다
	if old, exists := h.clients[client.userID]; exists {
		close(old.send)
		h.logger.Info("Replaced existing WebSocket connection", zap.String("uid", client.userID))
	}

	h.clients[client.userID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("uid", client.userID),
		zap.Int("clients", len(h.clients)))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 교체된 연결이면 이미 send가 닫혀 있다
	if current, exists := h.clients[client.userID]; exists && current == client {
		delete(h.clients, client.userID)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("uid", client.userID),
			zap.Int("clients", len(h.clients)))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for uid, client := range h.clients {
		close(client.send)
		delete(h.clients, uid)
	}
}

func (h *Hub) dispatch(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if message.UserID != "" {
		if client, exists := h.clients[message.UserID]; exists {
			h.deliver(client, message)
		}
		return
	}

	for _, client := range h.clients {
		h.deliver(client, message)
	}
}

func (h *Hub) deliver(client *Client, message *Message) {
	select {
	case client.send <- message:
	default:
		h.logger.Warn("Client send channel full, dropping connection", zap.String("uid", client.userID))
		go h.remove(client)
	}
}

func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// SendToUser 특정 플레이어에게 전송 (연결이 없으면 버림)
func (h *Hub) SendToUser(userID, msgType string, payload interface{}) {
	h.enqueue(&Message{
		UserID:  userID,
		Type:    msgType,
		Payload: payload,
	})
}

// Broadcast 모든 연결에 전송
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	h.enqueue(&Message{
		Type:    msgType,
		Payload: payload,
	})
}

// SendLobbyReady 로비의 두 플레이어에게 알림
func (h *Hub) SendLobbyReady(lobby *models.Lobby) {
	payload := LobbyReadyMessage{
		LobbyID:      lobby.ID,
		Mode:         lobby.Mode,
		Players:      lobby.Players,
		SkillAverage: lobby.SkillAverage,
	}
	for _, uid := range lobby.Players {
		h.SendToUser(uid, MessageTypeLobbyReady, payload)
	}
}

// IsConnected uid의 연결 여부
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.clients[userID]
	return ok
}

// ClientCount 연결 수
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
