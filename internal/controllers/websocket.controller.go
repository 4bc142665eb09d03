package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"watchpost/internal/middleware"
	"watchpost/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocketController upgrades clients and attaches them to the hub
type WebSocketController struct {
	hub      *services.WebSocketHub
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewWebSocketController creates a controller accepting the given browser
// origins. Requests without an Origin header (non-browser clients) are accepted.
func NewWebSocketController(hub *services.WebSocketHub, allowedOrigins []string, logger zerolog.Logger) *WebSocketController {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return &WebSocketController{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimRight(r.Header.Get("Origin"), "/")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// HandleWebSocket handles incoming WebSocket connections
func (w *WebSocketController) HandleWebSocket(c *gin.Context) {
	ws, err := w.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		w.logger.Warn().Err(err).Str("ip", c.ClientIP()).Msg("upgrade failed")
		return
	}

	client := services.NewClientConnection(ws, c.GetString(middleware.ContextClientKey))
	if !w.hub.Register(client) {
		_ = ws.Close()
		return
	}

	pongs := make(chan struct{}, 1)
	go w.writePump(client, pongs)
	go w.readPump(client, pongs)
}

// readPump reads client messages until the connection fails. Only "ping"
// is answered; everything else is ignored.
func (w *WebSocketController) readPump(client *services.ClientConnection, pongs chan<- struct{}) {
	defer func() {
		w.hub.Unregister(client.ID)
		_ = client.Conn.Close()
	}()

	client.Conn.SetReadLimit(4096)
	_ = client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg services.WebSocketMessage
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Debug().Err(err).Str("client", client.ID).Msg("read error")
			}
			return
		}
		if msg.Type == services.MessagePing {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
}

// writePump is the only writer on the connection
func (w *WebSocketController) writePump(client *services.ClientConnection, pongs <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(msg); err != nil {
				w.logger.Debug().Err(err).Str("client", client.ID).Msg("write error")
				return
			}

		case <-pongs:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteJSON(services.WebSocketMessage{Type: services.MessagePong, Timestamp: time.Now()}); err != nil {
				return
			}

		case <-ticker.C:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
