package link

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used when no database is
// configured and in tests.
type MemoryStore struct {
	mu    sync.Mutex
	links []Link
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// CreateWithCleanup sweeps links older than cutoff and inserts l.
func (s *MemoryStore) CreateWithCleanup(ctx context.Context, l Link, cutoff time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.links {
		if existing.ShortCode == l.ShortCode {
			return ErrDuplicateCode
		}
	}

	kept := s.links[:0]
	for _, existing := range s.links {
		if !existing.CreatedAt.Before(cutoff) {
			kept = append(kept, existing)
		}
	}
	s.links = append(kept, l)
	return nil
}

// GetByShortCode fetches a link by short code.
func (s *MemoryStore) GetByShortCode(ctx context.Context, shortCode string) (Link, error) {
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.links {
		if l.ShortCode == shortCode {
			return l, nil
		}
	}
	return Link{}, ErrNotFound
}

// ListByUser returns the user's links, newest first.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Link
	for _, l := range s.links {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateLabel sets the label on the (shortCode, userID) row when present.
func (s *MemoryStore) UpdateLabel(ctx context.Context, shortCode, userID, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.links {
		if s.links[i].ShortCode == shortCode && s.links[i].UserID == userID {
			s.links[i].Label = label
			return nil
		}
	}
	// Row swept concurrently; silent by contract.
	return nil
}

// Count returns the total number of stored links.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.links)), nil
}
