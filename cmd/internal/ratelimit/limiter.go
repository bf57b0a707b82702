// Package ratelimit implements per-identifier sliding-window admission
// control on top of the shared TTL key-value store.
//
// The window is a JSON array of unix timestamps under one key per
// (operation, identifier) pair. Because the store offers no atomic
// read-modify-write, concurrent admits can race past each other; the
// limiter is a best-effort bound, not a hard one.
package ratelimit

import (
	"context"
	"encoding/json"
	"time"

	"humanpass/cmd/internal/kv"
)

// Rule declares the budget for one guarded operation.
type Rule struct {
	// Prefix names the operation in store keys, e.g. "links" or "register".
	Prefix string
	// Max is the number of requests allowed per Window.
	Max int
	// Window is the sliding window length; it is also the key TTL.
	Window time.Duration
}

// Limiter admits or denies requests per identifier and rule.
type Limiter struct {
	store kv.Store
	now   func() time.Time
}

// New constructs a Limiter over the given store.
func New(store kv.Store) *Limiter {
	return &Limiter{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the limiter's time source. Test helper.
func (l *Limiter) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// Admit records a request for identifier under rule and reports whether
// it is allowed. A denied request is not recorded.
//
// Store failures surface to the caller untouched; retry policy belongs
// to the infrastructure layer.
func (l *Limiter) Admit(ctx context.Context, identifier string, rule Rule) (bool, error) {
	if rule.Max <= 0 || rule.Window <= 0 {
		return true, nil
	}

	key := "rl:" + rule.Prefix + ":" + identifier
	now := l.now().Unix()
	windowStart := now - int64(rule.Window/time.Second)

	raw, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return false, err
	}

	var timestamps []int64
	if ok {
		var stored []int64
		if err := json.Unmarshal(raw, &stored); err == nil {
			// Prune entries that fell out of the trailing window.
			for _, t := range stored {
				if t > windowStart {
					timestamps = append(timestamps, t)
				}
			}
		}
		// A corrupt value resets the window rather than failing the request.
	}

	if len(timestamps) >= rule.Max {
		return false, nil
	}

	timestamps = append(timestamps, now)
	buf, err := json.Marshal(timestamps)
	if err != nil {
		return false, err
	}
	if err := l.store.Put(ctx, key, buf, rule.Window); err != nil {
		return false, err
	}
	return true, nil
}
