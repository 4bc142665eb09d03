package routes

import (
	"github.com/gin-gonic/gin"

	"watchpost/internal/controllers"
)

// RegisterAlertRoutes registers alert status and the test notification hook
func RegisterAlertRoutes(api *gin.RouterGroup, alerts *controllers.AlertsController) {
	api.GET("/alerts", alerts.GetAlerts)
	api.POST("/notify/test", alerts.SendTestNotification)
}
