package link

import (
	"context"
	"time"
)

// Store abstracts durable persistence for links.
//
// CreateWithCleanup must apply the retention sweep and the insert as one
// atomic batch from the perspective of readers: either both effects are
// visible or neither.
type Store interface {
	// CreateWithCleanup inserts l and deletes all links created before
	// cutoff in the same batch. Returns ErrDuplicateCode when l.ShortCode
	// already exists.
	CreateWithCleanup(ctx context.Context, l Link, cutoff time.Time) error

	// GetByShortCode fetches a link by short code, or ErrNotFound.
	GetByShortCode(ctx context.Context, shortCode string) (Link, error)

	// ListByUser returns the user's links ordered newest first, capped at
	// limit (limit <= 0 uses the store default of 20).
	ListByUser(ctx context.Context, userID string, limit int) ([]Link, error)

	// UpdateLabel sets the label on the row matching (shortCode, userID).
	// A missing row is not an error; the row may have been swept
	// concurrently.
	UpdateLabel(ctx context.Context, shortCode, userID, label string) error

	// Count returns the total number of stored links.
	Count(ctx context.Context) (int64, error)
}

const defaultListLimit = 20
