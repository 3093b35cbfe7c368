package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/alimgiray/hookmetrics/internal/services"
	"github.com/alimgiray/hookmetrics/pkg/logger"
	"github.com/alimgiray/hookmetrics/pkg/metrics"
	"github.com/gin-gonic/gin"
)

const healthPingTimeout = 2 * time.Second

type HealthHandler struct {
	metricsService *services.MetricsService
	metrics        *metrics.Metrics
}

func NewHealthHandler(metricsService *services.MetricsService, m *metrics.Metrics) *HealthHandler {
	return &HealthHandler{
		metricsService: metricsService,
		metrics:        m,
	}
}

// Health reports 200 when storage answers a ping and 503 otherwise
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	if err := h.metricsService.Ping(ctx); err != nil {
		logger.WithError(err).Warn("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unavailable",
			"database": "down",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": "up",
	})
}

// Prometheus serves the ingest metrics in exposition format
func (h *HealthHandler) Prometheus() gin.HandlerFunc {
	return gin.WrapH(h.metrics.Handler())
}
