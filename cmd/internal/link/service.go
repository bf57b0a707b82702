package link

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Config holds the lifecycle windows.
type Config struct {
	// TTL is the reuse window: a link younger than this is returned
	// unchanged instead of minting a new one.
	TTL time.Duration
	// Retention is the lazy garbage-collection horizon; links older than
	// this are swept on the next insert.
	Retention time.Duration
}

// DefaultConfig matches the service's production windows.
func DefaultConfig() Config {
	return Config{
		TTL:       60 * time.Second,
		Retention: 24 * time.Hour,
	}
}

// Service implements issue-or-reuse and resolution over a Store.
type Service struct {
	cfg   Config
	store Store
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(cfg Config, store Store) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	return &Service{
		cfg:   cfg,
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the service's time source. Test helper.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// TTL returns the configured reuse window.
func (s *Service) TTL() time.Duration { return s.cfg.TTL }

// IssueOrReuse returns the user's current link when it is still inside
// the reuse window, otherwise mints a fresh one. The second return
// reports whether an existing link was reused. Minting sweeps links
// past the retention horizon in the same batch.
//
// A non-empty label on a reused link triggers a targeted label update
// scoped to (short_code, user_id); that update fails silently if the
// row was swept concurrently. Labels are truncated by the caller.
func (s *Service) IssueOrReuse(ctx context.Context, userID, label string) (Link, bool, error) {
	now := s.now()

	existing, err := s.store.ListByUser(ctx, userID, 1)
	if err != nil {
		return Link{}, false, err
	}
	if len(existing) > 0 && now.Sub(existing[0].CreatedAt) < s.cfg.TTL {
		current := existing[0]
		if label != "" && label != current.Label {
			if err := s.store.UpdateLabel(ctx, current.ShortCode, userID, label); err != nil {
				return Link{}, false, err
			}
			current.Label = label
		}
		return current, true, nil
	}

	minted, err := s.mint(ctx, userID, label, now)
	return minted, false, err
}

func (s *Service) mint(ctx context.Context, userID, label string, now time.Time) (Link, error) {
	cutoff := now.Add(-s.cfg.Retention)

	// One retry with a fresh suffix on a short-code collision; a second
	// collision in the same minute bucket surfaces as an error.
	for attempt := 0; attempt < 2; attempt++ {
		code, err := NewShortCode(now)
		if err != nil {
			return Link{}, err
		}
		id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
		if err != nil {
			return Link{}, err
		}

		l := Link{
			ID:        id.String(),
			UserID:    userID,
			ShortCode: code,
			Label:     label,
			CreatedAt: now,
		}
		err = s.store.CreateWithCleanup(ctx, l, cutoff)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, ErrDuplicateCode) {
			return Link{}, err
		}
	}
	return Link{}, ErrDuplicateCode
}

// Resolve is a pure lookup by short code; it never consults the TTL.
// Callers wanting "active" semantics compare CreatedAt themselves.
func (s *Service) Resolve(ctx context.Context, shortCode string) (Link, error) {
	return s.store.GetByShortCode(ctx, shortCode)
}

// List returns the user's links, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Link, error) {
	return s.store.ListByUser(ctx, userID, defaultListLimit)
}

// Rename updates the label of a link the user owns. Returns ErrNotFound
// when the code does not resolve or belongs to someone else.
func (s *Service) Rename(ctx context.Context, userID, shortCode, label string) (Link, error) {
	l, err := s.store.GetByShortCode(ctx, shortCode)
	if err != nil {
		return Link{}, err
	}
	if l.UserID != userID {
		return Link{}, ErrNotFound
	}
	if err := s.store.UpdateLabel(ctx, shortCode, userID, label); err != nil {
		return Link{}, err
	}
	l.Label = label
	return l, nil
}

// Count reports the total number of stored links.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}
