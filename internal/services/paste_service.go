package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/johnwmail/pastelite/internal/metrics"
	"github.com/johnwmail/pastelite/models"
	"github.com/johnwmail/pastelite/storage"
)

// Validation messages returned verbatim to API callers
const (
	msgContentRequired = "content is required and must be a non-empty string"
	msgInvalidTTL      = "ttl_seconds must be an integer ≥ 1"
	msgInvalidMaxViews = "max_views must be an integer ≥ 1"
)

const (
	defaultOperationTimeout = 5 * time.Second
	defaultIDAttempts       = 5
)

// IDGenerator produces candidate paste ids
type IDGenerator interface {
	Generate() (string, error)
}

// Options tunes a PasteService
type Options struct {
	// BaseURL prefixes locators, e.g. "https://paste.example.com". May be empty.
	BaseURL string
	// OperationTimeout applies when the caller's context has no deadline
	OperationTimeout time.Duration
	// IDAttempts bounds regeneration after duplicate ids
	IDAttempts int
}

// PasteService handles the paste lifecycle: create, consume a view, peek,
// burn and reap. All availability decisions go through models.Evaluate or
// the store's atomic ConsumeView.
type PasteService struct {
	store  storage.PasteStore
	ids    IDGenerator
	logger *slog.Logger
	opts   Options
}

// NewPasteService creates a new paste service
func NewPasteService(store storage.PasteStore, ids IDGenerator, logger *slog.Logger, opts Options) *PasteService {
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = defaultOperationTimeout
	}
	if opts.IDAttempts <= 0 {
		opts.IDAttempts = defaultIDAttempts
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &PasteService{
		store:  store,
		ids:    ids,
		logger: logger.With(slog.String("component", "paste_service")),
		opts:   opts,
	}
}

// CreatePasteRequest represents a request to create a paste. Nil pointers
// mean "not provided".
type CreatePasteRequest struct {
	Content    string
	TTLSeconds *int
	MaxViews   *int
	// BaseURL overrides Options.BaseURL for this paste's locator
	BaseURL string
}

// Validate returns the first violation as a *ValidationError
func (r CreatePasteRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return &ValidationError{Message: msgContentRequired}
	}
	if r.TTLSeconds != nil && *r.TTLSeconds < 1 {
		return &ValidationError{Message: msgInvalidTTL}
	}
	if r.MaxViews != nil && *r.MaxViews < 1 {
		return &ValidationError{Message: msgInvalidMaxViews}
	}
	return nil
}

// CreatePasteResponse represents the response from creating a paste
type CreatePasteResponse struct {
	ID    string
	URL   string
	Paste *models.Paste
}

// ViewResult is what a successful view hands back to the reader
type ViewResult struct {
	Content        string
	ViewsUsed      int
	RemainingViews *int
	ExpiresAt      *time.Time
}

// Locator builds the shareable link for a paste id
func Locator(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/p/" + id
}

func (s *PasteService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.OperationTimeout)
}

// Create validates req and inserts a new paste. A generated id that is
// already taken is regenerated, never overwritten.
func (s *PasteService) Create(ctx context.Context, req CreatePasteRequest, now time.Time) (*CreatePasteResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now = models.NormalizeTime(now)
	paste := &models.Paste{
		Content:   strings.TrimSpace(req.Content),
		CreatedAt: now,
	}
	if req.TTLSeconds != nil {
		expiresAt := now.Add(time.Duration(*req.TTLSeconds) * time.Second)
		paste.ExpiresAt = &expiresAt
	}
	if req.MaxViews != nil {
		maxViews := *req.MaxViews
		paste.MaxViews = &maxViews
	}

	base := s.opts.BaseURL
	if req.BaseURL != "" {
		base = req.BaseURL
	}

	for attempt := 1; attempt <= s.opts.IDAttempts; attempt++ {
		id, err := s.ids.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate id: %w", err)
		}
		paste.ID = id

		err = s.store.Insert(ctx, paste)
		if err == nil {
			metrics.PastesCreated.Inc()
			s.logger.Debug("Paste created",
				slog.String("id", id),
				slog.Bool("has_ttl", paste.ExpiresAt != nil),
				slog.Bool("has_max_views", paste.MaxViews != nil))
			return &CreatePasteResponse{
				ID:    id,
				URL:   Locator(base, id),
				Paste: paste,
			}, nil
		}
		if !errors.Is(err, storage.ErrDuplicateID) {
			s.logger.Error("Failed to insert paste", slog.String("error", err.Error()))
			return nil, storeError(err)
		}
		metrics.IDCollisions.Inc()
		s.logger.Warn("Generated id already taken, regenerating",
			slog.String("id", id),
			slog.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("failed to allocate a unique id after %d attempts", s.opts.IDAttempts)
}

// ConsumeView spends one view of the paste if it is available at now. The
// check and the increment are a single atomic store operation. An expired
// paste is deleted on the way out; the caller still gets ErrExpired.
func (s *PasteService) ConsumeView(ctx context.Context, id string, now time.Time) (*ViewResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now = models.NormalizeTime(now)
	paste, verdict, err := s.store.ConsumeView(ctx, id, now)
	if err != nil {
		metrics.Views.WithLabelValues("error").Inc()
		s.logger.Error("Failed to consume view", slog.String("id", id), slog.String("error", err.Error()))
		return nil, storeError(err)
	}
	metrics.Views.WithLabelValues(verdict.String()).Inc()

	switch verdict {
	case models.OK:
		return &ViewResult{
			Content:        paste.Content,
			ViewsUsed:      paste.ViewsUsed,
			RemainingViews: paste.RemainingViews(),
			ExpiresAt:      paste.ExpiresAt,
		}, nil
	case models.Expired:
		s.reapOnAccess(ctx, id)
		return nil, ErrExpired
	case models.Burned:
		return nil, ErrBurned
	case models.ViewLimitReached:
		return nil, ErrViewLimitReached
	default:
		return nil, ErrNotFound
	}
}

// reapOnAccess deletes an expired paste. Failures are logged only.
func (s *PasteService) reapOnAccess(ctx context.Context, id string) {
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Warn("Failed to delete expired paste", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	metrics.PastesReaped.WithLabelValues("access").Inc()
	s.logger.Debug("Deleted expired paste on access", slog.String("id", id))
}

// Peek evaluates the paste at now without spending a view. The returned
// paste is nil when the verdict is NotFound.
func (s *PasteService) Peek(ctx context.Context, id string, now time.Time) (*models.Paste, models.Verdict, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	paste, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, models.NotFound, storeError(err)
	}
	return paste, models.Evaluate(paste, models.NormalizeTime(now)), nil
}

// Burn makes the paste permanently unavailable. Burning twice is fine.
func (s *PasteService) Burn(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.Burn(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return storeError(err)
	}
	metrics.PastesBurned.Inc()
	s.logger.Info("Paste burned", slog.String("id", id))
	return nil
}

// Reap deletes every paste whose expiry is at or before now, whatever its
// burned or view state. Exhausted pastes without an expiry are kept.
func (s *PasteService) Reap(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	removed, err := s.store.DeleteExpired(ctx, models.NormalizeTime(now))
	metrics.ReapRuns.Inc()
	metrics.ReapDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return removed, storeError(err)
	}
	metrics.PastesReaped.WithLabelValues("sweep").Add(float64(removed))
	return removed, nil
}

// Ping checks the store
func (s *PasteService) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		return storeError(err)
	}
	return nil
}
