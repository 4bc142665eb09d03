package routes

import (
	"github.com/gin-gonic/gin"

	"watchpost/internal/controllers"
)

// RegisterWebSocketRoutes registers the live push endpoint
func RegisterWebSocketRoutes(r gin.IRoutes, ws *controllers.WebSocketController) {
	r.GET("/ws", ws.HandleWebSocket)
}
