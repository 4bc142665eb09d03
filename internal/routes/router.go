package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"watchpost/internal/controllers"
	"watchpost/internal/middleware"
)

// RouterOptions carries everything the HTTP surface is built from
type RouterOptions struct {
	Metrics   *controllers.MetricsController
	History   *controllers.HistoryController
	Alerts    *controllers.AlertsController
	Health    *controllers.HealthController
	WebSocket *controllers.WebSocketController

	// Auth protects /api and /ws when set
	Auth           middleware.TokenValidator
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         zerolog.Logger
}

// NewRouter builds the gin engine with middleware and all routes
func NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware(opts.AllowedOrigins))

	RegisterHealthRoutes(r, opts.Health)

	protected := r.Group("/")
	protected.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst), opts.Logger))
	if opts.Auth != nil {
		protected.Use(middleware.BearerAuth(opts.Auth, opts.Logger))
	}

	api := protected.Group("/api")
	RegisterMonitorRoutes(api, opts.Metrics, opts.History)
	RegisterAlertRoutes(api, opts.Alerts)
	RegisterWebSocketRoutes(protected, opts.WebSocket)

	return r
}

// RegisterHealthRoutes registers probes for orchestrators and the Prometheus endpoint
func RegisterHealthRoutes(r gin.IRoutes, health *controllers.HealthController) {
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
