package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler handles system endpoints
type SystemHandler struct {
	pinger Pinger
	logger *slog.Logger
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(pinger Pinger, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{pinger: pinger, logger: logger}
}

// Health handles liveness via GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "pastelite",
	})
}

// Healthz handles readiness via GET /api/healthz, pinging the store
func (h *SystemHandler) Healthz(c *gin.Context) {
	if err := h.pinger.Ping(c.Request.Context()); err != nil {
		h.logger.Error("Health check failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":    false,
			"error": "Database connection failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
