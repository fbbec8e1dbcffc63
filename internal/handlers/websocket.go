package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fairdice-backend/internal/logger"
	"fairdice-backend/internal/models"
	"fairdice-backend/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	seeds *services.SeedManager
	hub   *WebSocketHub
}

type WebSocketHub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
}

type Client struct {
	UserID string
	Conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

type Message struct {
	Type   string `json:"type"`
	UserID string `json:"user_id,omitempty"`
	Data   any    `json:"data"`
}

// NewWebSocketHub starts the hub that fans bets and rotations out to
// connected clients.
func NewWebSocketHub() *WebSocketHub {
	hub := &WebSocketHub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 100),
		done:       make(chan struct{}),
	}

	go hub.run()

	return hub
}

func NewWebSocketHandler(hub *WebSocketHub, seeds *services.SeedManager) *WebSocketHandler {
	return &WebSocketHandler{
		seeds: seeds,
		hub:   hub,
	}
}

// Close stops the hub and disconnects every client.
func (hub *WebSocketHub) Close() {
	close(hub.done)
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.L().Warn("Failed to upgrade to WebSocket", "error", err)
		return
	}

	client := &Client{
		UserID: userID(c),
		Conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()

	h.sendSeedState(c, client)
	h.readPump(client)
}

func (h *WebSocketHandler) readPump(client *Client) {
	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
		}
		client.Conn.Close()
	}()

	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		err := client.Conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.L().Warn("WebSocket error", "user_id", client.UserID, "error", err)
			}
			return
		}

		h.handleMessage(client, &msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue drops the message when the client is too slow to keep up or
// has already been closed by the hub.
func (c *Client) enqueue(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.L().Error("Failed to marshal WebSocket message", "type", msg.Type, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		logger.L().Warn("WebSocket client lagging, message dropped", "user_id", c.UserID, "type", msg.Type)
	}
}

// close ends the write pump. The request goroutine may still enqueue
// afterwards, so send is only closed under mu.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (h *WebSocketHandler) handleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case "PING":
		client.enqueue(&Message{
			Type: "PONG",
			Data: gin.H{"timestamp": time.Now().Unix()},
		})
	}
}

func (h *WebSocketHandler) sendSeedState(c *gin.Context, client *Client) {
	data, err := h.seeds.VerificationData(c.Request.Context(), client.UserID)
	if err != nil {
		logger.L().Warn("Failed to get verification data for WS", "user_id", client.UserID, "error", err)
		return
	}

	client.enqueue(&Message{
		Type: "SEED_STATE",
		Data: data,
	})
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			conns, ok := hub.clients[client.UserID]
			if !ok {
				conns = make(map[*Client]bool)
				hub.clients[client.UserID] = conns
			}
			conns[client] = true
			logger.L().Debug("Client registered", "user_id", client.UserID)

		case client := <-hub.unregister:
			if conns, ok := hub.clients[client.UserID]; ok && conns[client] {
				delete(conns, client)
				client.close()
				if len(conns) == 0 {
					delete(hub.clients, client.UserID)
				}
				logger.L().Debug("Client unregistered", "user_id", client.UserID)
			}

		case message := <-hub.broadcast:
			hub.broadcastMessage(message)

		case <-hub.done:
			for _, conns := range hub.clients {
				for client := range conns {
					client.close()
				}
			}
			hub.clients = nil
			return
		}
	}
}

func (hub *WebSocketHub) broadcastMessage(message *Message) {
	if message.UserID != "" {
		for client := range hub.clients[message.UserID] {
			client.enqueue(message)
		}
		return
	}

	for _, conns := range hub.clients {
		for client := range conns {
			client.enqueue(message)
		}
	}
}

func (hub *WebSocketHub) publish(msg *Message) {
	select {
	case hub.broadcast <- msg:
	case <-hub.done:
	default:
		logger.L().Warn("WebSocket broadcast queue full, message dropped", "type", msg.Type)
	}
}

func (hub *WebSocketHub) BroadcastBet(bet *models.Bet, user *models.User) {
	hub.publish(&Message{
		Type:   "BET_SETTLED",
		UserID: bet.UserID,
		Data: gin.H{
			"bet":  bet,
			"user": user,
		},
	})

	hub.publish(&Message{
		Type: "BET_FEED",
		Data: gin.H{
			"bet_id":     bet.ID,
			"bet_amount": bet.BetAmount,
			"target":     bet.Target,
			"result":     bet.Result,
			"multiplier": bet.Multiplier,
			"won":        bet.Won,
			"profit":     bet.Profit,
			"created_at": bet.CreatedAt,
		},
	})
}

func (hub *WebSocketHub) BroadcastSeedRotation(userID string, rotation *models.RotationResult) {
	hub.publish(&Message{
		Type:   "SEED_ROTATED",
		UserID: userID,
		Data:   rotation,
	})
}

func (hub *WebSocketHub) BroadcastHousePeriod(stat *models.HouseStat) {
	hub.publish(&Message{
		Type: "HOUSE_PERIOD",
		Data: stat,
	})
}
