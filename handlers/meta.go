package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/pastelite/config"
	"github.com/johnwmail/pastelite/internal/clock"
	"github.com/johnwmail/pastelite/internal/services"
	"github.com/johnwmail/pastelite/internal/slug"
	"github.com/johnwmail/pastelite/models"
)

// MetaHandler serves the operator endpoints. None of them spend a view.
type MetaHandler struct {
	service *services.PasteService
	config  *config.Config
	clock   clock.Clock
	logger  *slog.Logger
}

// NewMetaHandler creates a new metadata handler
func NewMetaHandler(service *services.PasteService, config *config.Config, clk clock.Clock, logger *slog.Logger) *MetaHandler {
	return &MetaHandler{
		service: service,
		config:  config,
		clock:   clk,
		logger:  logger,
	}
}

// GetMetadata handles metadata retrieval via GET /api/v1/meta/:id
func (h *MetaHandler) GetMetadata(c *gin.Context) {
	id := c.Param("id")
	if !slug.Valid(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id format"})
		return
	}

	paste, verdict, err := h.service.Peek(c.Request.Context(), id, requestNow(c, h.config, h.clock))
	if err != nil {
		h.logger.Error("Peek failed", slog.String("id", id), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve paste"})
		return
	}

	if verdict == models.NotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Paste not found"})
		return
	}

	// Return metadata without content
	c.JSON(http.StatusOK, gin.H{
		"id":              paste.ID,
		"created_at":      paste.CreatedAt,
		"expires_at":      paste.ExpiresAt,
		"max_views":       paste.MaxViews,
		"views_used":      paste.ViewsUsed,
		"remaining_views": paste.RemainingViews(),
		"burned":          paste.Burned,
		"size":            len(paste.Content),
		"status":          verdict.String(),
	})
}

// Burn handles POST /api/v1/burn/:id
func (h *MetaHandler) Burn(c *gin.Context) {
	id := c.Param("id")
	if !slug.Valid(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id format"})
		return
	}

	if err := h.service.Burn(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Paste not found"})
			return
		}
		h.logger.Error("Burn failed", slog.String("id", id), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to burn paste"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "burned": true})
}

// Reap handles POST /api/v1/reap, a manual sweep of expired pastes
func (h *MetaHandler) Reap(c *gin.Context) {
	removed, err := h.service.Reap(c.Request.Context(), requestNow(c, h.config, h.clock))
	if err != nil {
		h.logger.Error("Reap failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reap pastes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": removed})
}
