package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/pastelite/config"
	"github.com/johnwmail/pastelite/internal/clock"
	"github.com/johnwmail/pastelite/internal/services"
	"github.com/johnwmail/pastelite/internal/slug"
)

// TestNowHeader overrides "now" for a request when test mode is on
const TestNowHeader = "X-Test-Now-Ms"

const (
	// every unavailable outcome shares one body so clients cannot tell them apart
	msgUnavailable = "Paste not available"
	msgInternal    = "Internal server error"
	msgInvalidJSON = "request body must be a JSON object"

	// ISO-8601 with milliseconds, the shape clients already parse
	timeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Helper: respondError sends a JSON error response
func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// PasteHandler serves the public create and read endpoints
type PasteHandler struct {
	service *services.PasteService
	config  *config.Config
	clock   clock.Clock
	logger  *slog.Logger
}

// NewPasteHandler creates a new paste handler
func NewPasteHandler(service *services.PasteService, config *config.Config, clk clock.Clock, logger *slog.Logger) *PasteHandler {
	return &PasteHandler{
		service: service,
		config:  config,
		clock:   clk,
		logger:  logger,
	}
}

// requestNow resolves the instant a request is evaluated at
func requestNow(c *gin.Context, cfg *config.Config, clk clock.Clock) time.Time {
	if cfg.TestMode {
		if raw := c.GetHeader(TestNowHeader); raw != "" {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return time.UnixMilli(ms).UTC()
			}
		}
	}
	return clk.Now()
}

// baseURL returns the configured public URL or one derived from the request
func baseURL(c *gin.Context, cfg *config.Config) string {
	if cfg.URL != "" {
		return strings.TrimRight(cfg.URL, "/")
	}
	scheme := "http"
	if isHTTPS(c) {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}

// isHTTPS detects if the original request was HTTPS, even behind proxies
func isHTTPS(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	if c.GetHeader("X-Forwarded-Proto") == "https" {
		return true
	}
	if c.GetHeader("X-Forwarded-Ssl") == "on" {
		return true
	}
	// Lambda Function URLs behind CloudFront
	return c.GetHeader("CloudFront-Forwarded-Proto") == "https"
}

// createBody mirrors the JSON create request. Fields are decoded loosely
// so that a wrong type becomes a validation error rather than a parse error.
type createBody struct {
	Content    json.RawMessage `json:"content"`
	TTLSeconds json.RawMessage `json:"ttl_seconds"`
	MaxViews   json.RawMessage `json:"max_views"`
}

func (b createBody) toRequest() services.CreatePasteRequest {
	var content string
	if err := json.Unmarshal(b.Content, &content); err != nil {
		content = ""
	}
	return services.CreatePasteRequest{
		Content:    content,
		TTLSeconds: optionalPositiveInt(b.TTLSeconds),
		MaxViews:   optionalPositiveInt(b.MaxViews),
	}
}

// optionalPositiveInt maps absent or null to nil, an integral JSON number to
// its value, and anything else to 0 so that validation rejects it
func optionalPositiveInt(raw json.RawMessage) *int {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	invalid := 0
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return &invalid
	}
	if f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
		return &invalid
	}
	v := int(f)
	return &v
}

// Create handles paste creation via POST /api/pastes
func (h *PasteHandler) Create(c *gin.Context) {
	var body createBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	req := body.toRequest()
	req.BaseURL = baseURL(c, h.config)

	resp, err := h.service.Create(c.Request.Context(), req, requestNow(c, h.config, h.clock))
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			respondError(c, http.StatusBadRequest, verr.Message)
			return
		}
		h.logger.Error("Create failed", slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, msgInternal)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":  resp.ID,
		"url": resp.URL,
	})
}

// consume validates the id and spends one view. On failure it has already
// written the response and returns nil.
func (h *PasteHandler) consume(c *gin.Context, respond func(int, string)) *services.ViewResult {
	id := c.Param("id")
	if !slug.Valid(id) {
		respond(http.StatusNotFound, msgUnavailable)
		return nil
	}

	result, err := h.service.ConsumeView(c.Request.Context(), id, requestNow(c, h.config, h.clock))
	if err == nil {
		return result
	}
	if services.IsUnavailable(err) {
		h.logger.Debug("Paste not available", slog.String("id", id), slog.String("reason", err.Error()))
		respond(http.StatusNotFound, msgUnavailable)
		return nil
	}
	h.logger.Error("View failed", slog.String("id", id), slog.String("error", err.Error()))
	respond(http.StatusInternalServerError, msgInternal)
	return nil
}

// Get handles paste retrieval via GET /api/pastes/:id. Every successful
// call spends one view.
func (h *PasteHandler) Get(c *gin.Context) {
	result := h.consume(c, func(status int, msg string) { respondError(c, status, msg) })
	if result == nil {
		return
	}

	response := gin.H{"content": result.Content}
	if result.RemainingViews != nil {
		response["remaining_views"] = *result.RemainingViews
	}
	if result.ExpiresAt != nil {
		response["expires_at"] = result.ExpiresAt.UTC().Format(timeLayout)
	}
	c.JSON(http.StatusOK, response)
}

// Raw handles the shareable locator GET /p/:id, returning the content as
// plain text. It spends a view like Get.
func (h *PasteHandler) Raw(c *gin.Context) {
	result := h.consume(c, func(status int, msg string) { c.String(status, msg) })
	if result == nil {
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("X-Content-Type-Options", "nosniff")
	if result.RemainingViews != nil {
		c.Header("X-Remaining-Views", strconv.Itoa(*result.RemainingViews))
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(result.Content))
}
