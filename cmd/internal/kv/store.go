// Package kv provides the shared TTL key-value store that all ephemeral
// coordination state goes through: sessions, sync mailboxes, rate-limit
// windows, referer pins, and WebAuthn challenges.
//
// The contract is deliberately weak. There are no transactions, no
// conditional writes, and no ordering guarantee between concurrent
// writers to the same key beyond last-write-wins. Reads may lag writes
// from another connection. Everything layered on top must be written as
// read-modify-write sequences that tolerate lost updates and stale reads.
package kv

import (
	"context"
	"time"
)

// Store is the TTL key-value contract.
//
// Get returns (nil, false, nil) for an absent or expired key; absence is
// not an error. Put with ttl <= 0 stores the value without expiry.
// Delete is idempotent.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
