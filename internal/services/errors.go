package services

import (
	"errors"
	"fmt"
)

// Lifecycle errors. The four unavailable outcomes look the same to a client
// but stay distinct here for tests, logs and metrics.
var (
	ErrNotFound         = errors.New("paste not found")
	ErrExpired          = errors.New("paste expired")
	ErrBurned           = errors.New("paste burned")
	ErrViewLimitReached = errors.New("paste view limit reached")

	// ErrStoreUnavailable wraps any failure of the underlying store
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError is a rejected create request. Message is safe to show
// to the caller as-is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsUnavailable reports whether err is one of the four not-available outcomes
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrBurned) ||
		errors.Is(err, ErrViewLimitReached)
}

func storeError(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
