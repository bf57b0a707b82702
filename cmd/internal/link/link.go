// Package link owns the lifecycle of proof-of-humanness links: issuing,
// reusing, resolving, and lazily garbage-collecting them.
package link

import (
	"errors"
	"time"
)

// Link is a short-lived verification link owned by one user.
//
// "Active" is a derived, time-based property: the store never enforces
// one-link-per-user, and resolution never consults the TTL. Callers that
// want freshness compare CreatedAt against their own window.
type Link struct {
	ID        string
	UserID    string
	ShortCode string
	Label     string // optional, empty when unset
	CreatedAt time.Time
}

// MaxLabelLength is the longest label stored; longer inputs are
// truncated by the API layer before they reach this package.
const MaxLabelLength = 100

var (
	// ErrNotFound is returned when a short code resolves to nothing.
	ErrNotFound = errors.New("link: not found")
	// ErrDuplicateCode is returned when an insert hits the short-code
	// unique constraint.
	ErrDuplicateCode = errors.New("link: duplicate short code")
)
