package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// Client 플레이어 한 명의 WebSocket 연결
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan *Message
	userID string
	logger *zap.Logger
}

// NewClient 클라이언트 생성
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan *Message, 64),
		userID: userID,
		logger: hub.logger,
	}
}

// readPump 연결 유지용. 클라이언트가 보낸 메시지는 무시한다.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.String("uid", c.userID),
					zap.Error(err))
			}
			return
		}
	}
}

// writePump Hub의 메시지를 연결로 전송
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.logger.Error("Failed to marshal message",
					zap.String("uid", c.userID),
					zap.Error(err))
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("Failed to write message",
					zap.String("uid", c.userID),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// NewUpgrader origin 허용 목록으로 Upgrader 생성. 목록이 비었거나 "*"이면 모두 허용.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || allowed["*"] || origin == "" || allowed[origin]
		},
	}
}

// ServeWs 연결을 업그레이드하고 Hub에 등록
func ServeWs(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := NewClient(hub, conn, userID)
	if !hub.add(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
