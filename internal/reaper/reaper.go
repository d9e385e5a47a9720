// Package reaper runs the periodic sweep that deletes expired pastes.
// Reads never depend on it: an expired paste is refused on access even if
// the sweep has not reached it yet.
package reaper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/johnwmail/pastelite/internal/clock"
)

// Sweeper deletes pastes that expired at or before now
type Sweeper interface {
	Reap(ctx context.Context, now time.Time) (int64, error)
}

// Reaper calls Sweeper.Reap on a fixed interval
type Reaper struct {
	sweeper  Sweeper
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger

	mu sync.Mutex // serialises RunOnce
}

// New creates a reaper. An interval of zero or less disables Run.
func New(sweeper Sweeper, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		sweeper:  sweeper,
		clock:    clk,
		interval: interval,
		logger:   logger.With(slog.String("component", "reaper")),
	}
}

// Run sweeps once immediately, then every interval until ctx is cancelled
func (r *Reaper) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("Background reaping disabled")
		return
	}

	r.logger.Info("Reaper started", slog.Duration("interval", r.interval))
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reaper stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns the number of pastes removed
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	removed, err := r.sweeper.Reap(ctx, r.clock.Now())
	if err != nil {
		r.logger.Error("Sweep failed", slog.String("error", err.Error()))
		return removed, err
	}

	if removed > 0 {
		r.logger.Info("Deleted expired pastes",
			slog.Int64("count", removed),
			slog.Duration("duration", time.Since(start)))
	} else {
		r.logger.Debug("Nothing to reap")
	}
	return removed, nil
}
