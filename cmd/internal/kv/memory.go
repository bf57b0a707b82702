package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used when no database is configured
// and in tests. It honors the same TTL semantics as the Postgres store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry

	// now is swappable so tests can control expiry.
	now func() time.Time
}

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's time source. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Get returns the value for key, or ok=false when absent or expired.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(s.now()) {
		delete(s.entries, key)
		return nil, false, nil
	}

	// Copy so callers cannot mutate stored state.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Put stores value under key with the given TTL (ttl <= 0 means no expiry).
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	e := memEntry{value: stored}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}
