package models

import (
	"time"
)

// Paste represents a stored paste with its lifecycle state
type Paste struct {
	ID        string     `json:"id" bson:"_id"`
	Content   string     `json:"-" bson:"content"` // Not exposed in metadata JSON
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	ExpiresAt *time.Time `json:"expires_at" bson:"expires_at,omitempty"`
	MaxViews  *int       `json:"max_views" bson:"max_views,omitempty"`
	ViewsUsed int        `json:"views_used" bson:"views_used"`
	Burned    bool       `json:"burned" bson:"burned"`
}

// Verdict is the availability decision for a paste at a given instant
type Verdict int

const (
	OK Verdict = iota
	NotFound
	Burned
	Expired
	ViewLimitReached
)

func (v Verdict) String() string {
	switch v {
	case OK:
		return "ok"
	case NotFound:
		return "not_found"
	case Burned:
		return "burned"
	case Expired:
		return "expired"
	case ViewLimitReached:
		return "view_limit_reached"
	default:
		return "unknown"
	}
}

// Evaluate decides whether p can be read at now. Burned wins over expiry,
// expiry wins over an exhausted view budget. Expiry is exclusive: at exactly
// ExpiresAt the paste is already expired.
func Evaluate(p *Paste, now time.Time) Verdict {
	if p == nil {
		return NotFound
	}
	if p.Burned {
		return Burned
	}
	if p.IsExpired(now) {
		return Expired
	}
	if p.MaxViews != nil && p.ViewsUsed >= *p.MaxViews {
		return ViewLimitReached
	}
	return OK
}

// Available reports whether a read at now would be served
func Available(p *Paste, now time.Time) bool {
	return Evaluate(p, now) == OK
}

// IsExpired checks if the paste has expired at now
func (p *Paste) IsExpired(now time.Time) bool {
	if p.ExpiresAt == nil {
		return false
	}
	return !now.Before(*p.ExpiresAt)
}

// RemainingViews returns the unused view budget, or nil when unlimited
func (p *Paste) RemainingViews() *int {
	if p.MaxViews == nil {
		return nil
	}
	remaining := *p.MaxViews - p.ViewsUsed
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// NormalizeTime truncates t to the millisecond in UTC, the coarsest precision
// any storage backend keeps.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
