package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"watchpost/internal/apperrors"
	"watchpost/internal/models"
	"watchpost/internal/services"
)

// SnapshotReader serves the current snapshot and cache diagnostics
type SnapshotReader interface {
	Current() *models.MetricSnapshot
	Processes() models.ProcessList
	Caches() []services.CacheInfo
}

// HistoryQuerier answers range queries
type HistoryQuerier interface {
	Query(ctx context.Context, metric string, windowHours int) ([]models.HistoryPoint, error)
}

// AlertReader exposes alert status and the test notification hook
type AlertReader interface {
	Status() models.AlertStatusView
	SendTest(ctx context.Context) error
}

// respondError writes err with the status its code maps to
func respondError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperrors.HTTPStatus(err), gin.H{
		"error": err.Error(),
		"code":  apperrors.CodeOf(err),
	})
}

// MetricsController serves live host state
type MetricsController struct {
	snapshots SnapshotReader
}

// NewMetricsController creates a MetricsController
func NewMetricsController(snapshots SnapshotReader) *MetricsController {
	return &MetricsController{snapshots: snapshots}
}

// GetSnapshot returns the snapshot assembled from whatever the caches hold.
// It never waits for a probe.
func (m *MetricsController) GetSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, m.snapshots.Current())
}

// GetProcesses returns the cached top-processes list
func (m *MetricsController) GetProcesses(c *gin.Context) {
	c.JSON(http.StatusOK, m.snapshots.Processes())
}

// GetCaches returns per-key cache diagnostics
func (m *MetricsController) GetCaches(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"caches": m.snapshots.Caches()})
}

// HistoryController serves chart data
type HistoryController struct {
	history HistoryQuerier
}

// NewHistoryController creates a HistoryController
func NewHistoryController(history HistoryQuerier) *HistoryController {
	return &HistoryController{history: history}
}

// GetHistory returns bucketed averages for one metric.
// Query params: metric=cpu|ram|disk|net_up|net_down (default cpu), hours (default 24)
func (h *HistoryController) GetHistory(c *gin.Context) {
	metric := c.DefaultQuery("metric", models.HistoryMetricCPU)
	hoursStr := c.DefaultQuery("hours", "24")

	hours, err := strconv.Atoi(hoursStr)
	if err != nil {
		respondError(c, apperrors.Invalid("invalid hours %q", hoursStr))
		return
	}

	points, err := h.history.Query(c.Request.Context(), metric, hours)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metric": metric,
		"hours":  hours,
		"bucket": services.BucketWidth(hours).String(),
		"points": points,
	})
}

// AlertsController serves alert state
type AlertsController struct {
	alerts      AlertReader
	testTimeout time.Duration
}

// NewAlertsController creates an AlertsController
func NewAlertsController(alerts AlertReader) *AlertsController {
	return &AlertsController{alerts: alerts, testTimeout: 15 * time.Second}
}

// GetAlerts returns open alerts and recent history
func (a *AlertsController) GetAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, a.alerts.Status())
}

// SendTestNotification sends a notification outside rule evaluation and
// reports whether it was delivered.
func (a *AlertsController) SendTestNotification(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), a.testTimeout)
	defer cancel()

	if err := a.alerts.SendTest(ctx); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"sent": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

// HealthController serves liveness and readiness
type HealthController struct {
	ready func() bool
}

// NewHealthController creates a HealthController. ready reports whether
// warm start has finished.
func NewHealthController(ready func() bool) *HealthController {
	return &HealthController{ready: ready}
}

// Healthz always answers ok while the process is serving
func (h *HealthController) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz answers 503 until the first round of probes has completed
func (h *HealthController) Readyz(c *gin.Context) {
	if !h.ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "warming"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
