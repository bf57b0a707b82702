// Package fraud flags verification links that are visited from multiple
// unrelated sites, a weak signal of bulk or bot distribution.
//
// The first Referer origin observed for a short code is pinned in the
// TTL store; later visits from a different origin are reported as fraud
// until the pin expires. This is a single mutable value, not a set, so
// legitimate multi-site sharing trips it too — an accepted tradeoff.
package fraud

import (
	"context"
	"net/url"
	"time"

	"humanpass/cmd/internal/kv"
)

const defaultPinTTL = 300 * time.Second

// Detector pins and compares referer origins per short code.
type Detector struct {
	store  kv.Store
	pinTTL time.Duration
}

// New constructs a Detector. ttl <= 0 falls back to the 300s default.
func New(store kv.Store, ttl time.Duration) *Detector {
	if ttl <= 0 {
		ttl = defaultPinTTL
	}
	return &Detector{store: store, pinTTL: ttl}
}

// Check reports whether the visit looks fraudulent.
//
// Visits without a Referer, or with one that does not parse to an
// origin, are always clean and never touch the pinned state.
func (d *Detector) Check(ctx context.Context, shortCode, referer string) (fraud bool, err error) {
	origin, ok := refererOrigin(referer)
	if !ok {
		return false, nil
	}

	key := "link-ref:" + shortCode
	stored, found, err := d.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		// First referer establishes the baseline.
		if err := d.store.Put(ctx, key, []byte(origin), d.pinTTL); err != nil {
			return false, err
		}
		return false, nil
	}
	return string(stored) != origin, nil
}

// refererOrigin extracts scheme://host from a Referer header value.
func refererOrigin(referer string) (string, bool) {
	if referer == "" {
		return "", false
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return u.Scheme + "://" + u.Host, true
}
