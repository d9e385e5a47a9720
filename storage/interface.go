package storage

import (
	"context"
	"errors"
	"time"

	"github.com/johnwmail/pastelite/models"
)

var (
	// ErrDuplicateID is returned by Insert when the id is already taken
	ErrDuplicateID = errors.New("paste id already exists")
	// ErrNotFound is returned by Burn when no paste has the id
	ErrNotFound = errors.New("paste not found")

	errStoreClosed = errors.New("store is closed")
)

// PasteStore defines the interface for paste storage backends. Every
// implementation must make ConsumeView a single atomic check-and-increment.
type PasteStore interface {
	// Insert saves a new paste, failing with ErrDuplicateID instead of overwriting
	Insert(ctx context.Context, paste *models.Paste) error

	// ConsumeView increments views_used by one if the paste is available at now.
	// On models.OK it returns the post-increment record. Otherwise it returns the
	// record as currently stored (nil when absent) and the reason it was refused.
	ConsumeView(ctx context.Context, id string, now time.Time) (*models.Paste, models.Verdict, error)

	// Get retrieves a paste by its ID, returning nil, nil when absent
	Get(ctx context.Context, id string) (*models.Paste, error)

	// Burn marks a paste as burned
	Burn(ctx context.Context, id string) error

	// Delete removes a paste; deleting a missing paste is not an error
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes every paste whose expiry is at or before now
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close closes the storage connection
	Close() error
}

// classify evaluates a record re-read after a refused conditional update.
// The refusal conditions are monotone, so an available record here can only
// mean the original row vanished and the id was reused in between.
func classify(p *models.Paste, now time.Time) (*models.Paste, models.Verdict) {
	verdict := models.Evaluate(p, now)
	if verdict == models.OK {
		return nil, models.NotFound
	}
	return p, verdict
}
