package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"watchpost/internal/models"
	"watchpost/internal/telemetry"
)

// Message types pushed to and accepted from clients
const (
	MessageSnapshot = "snapshot"
	MessageAlert    = "alert"
	MessagePing     = "ping"
	MessagePong     = "pong"
	MessageError    = "error"
)

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ClientConnection represents a connected WebSocket client
type ClientConnection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan WebSocketMessage
	Subject string
}

// NewClientConnection wraps conn with a fresh ID and a buffered send queue
func NewClientConnection(conn *websocket.Conn, subject string) *ClientConnection {
	return &ClientConnection{
		ID:      uuid.NewString(),
		Conn:    conn,
		Send:    make(chan WebSocketMessage, 64),
		Subject: subject,
	}
}

// WebSocketHub fans snapshots and alert events out to connected clients.
// Slow clients miss messages rather than hold up the hub.
type WebSocketHub struct {
	clients    map[string]*ClientConnection
	broadcast  chan WebSocketMessage
	register   chan *ClientConnection
	unregister chan string
	done       chan struct{}
	mu         sync.RWMutex
	logger     zerolog.Logger
	now        func() time.Time
}

// NewWebSocketHub creates a hub. Nothing is delivered until Run is started.
func NewWebSocketHub(logger zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[string]*ClientConnection),
		broadcast:  make(chan WebSocketMessage, 256),
		register:   make(chan *ClientConnection),
		unregister: make(chan string),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "ws").Logger(),
		now:        time.Now,
	}
}

// Run manages the hub's event loop until ctx is cancelled, then closes
// every client queue.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for id, client := range h.clients {
			delete(h.clients, id)
			close(client.Send)
		}
		h.mu.Unlock()
		telemetry.WebSocketClients.Set(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			total := len(h.clients)
			h.mu.Unlock()
			telemetry.WebSocketClients.Set(float64(total))
			h.logger.Info().Str("client", client.ID).Str("subject", client.Subject).Int("total", total).Msg("client connected")

		case clientID := <-h.unregister:
			h.mu.Lock()
			if client, exists := h.clients[clientID]; exists {
				delete(h.clients, clientID)
				close(client.Send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			telemetry.WebSocketClients.Set(float64(total))
			h.logger.Info().Str("client", clientID).Int("total", total).Msg("client disconnected")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				select {
				case client.Send <- msg:
				default:
					// queue full, drop for this client
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client. It reports false once the hub has stopped.
func (h *WebSocketHub) Register(client *ClientConnection) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its send queue
func (h *WebSocketHub) Unregister(clientID string) {
	select {
	case h.unregister <- clientID:
	case <-h.done:
	}
}

// Broadcast queues msg for every client without blocking.
func (h *WebSocketHub) Broadcast(msg WebSocketMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = h.now()
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug().Str("type", msg.Type).Msg("broadcast queue full, dropping message")
	}
}

// OnSnapshot pushes a published snapshot to clients
func (h *WebSocketHub) OnSnapshot(s *models.MetricSnapshot) {
	h.Broadcast(WebSocketMessage{Type: MessageSnapshot, Data: s})
}

// OnAlert pushes an alert firing or resolution to clients
func (h *WebSocketHub) OnAlert(e models.AlertHistoryEntry) {
	h.Broadcast(WebSocketMessage{Type: MessageAlert, Data: e})
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
