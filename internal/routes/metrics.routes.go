package routes

import (
	"github.com/gin-gonic/gin"

	"watchpost/internal/controllers"
)

// RegisterMonitorRoutes registers the live state and history reads
func RegisterMonitorRoutes(api *gin.RouterGroup, metrics *controllers.MetricsController, history *controllers.HistoryController) {
	api.GET("/snapshot", metrics.GetSnapshot)
	api.GET("/processes", metrics.GetProcesses)
	api.GET("/cache", metrics.GetCaches)
	api.GET("/history", history.GetHistory)
}
