// Package session maps opaque bearer tokens to user IDs through the TTL
// store and owns the session cookie policy.
//
// A session lives as long as the link records it can manage (the 24h
// retention horizon), well past the short reuse window that only governs
// whether a new issue returns the existing link.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"humanpass/cmd/internal/kv"
)

// ErrUnauthenticated is returned when a token does not resolve to a live
// session (absent, expired, or destroyed).
var ErrUnauthenticated = errors.New("session: unauthenticated")

const keyPrefix = "session:"

// tokenBytes gives 256 bits of entropy, comfortably over the 128-bit floor.
const tokenBytes = 32

// Manager issues, resolves, and destroys sessions.
type Manager struct {
	store kv.Store
	ttl   time.Duration
}

// sessionData is the stored KV payload.
type sessionData struct {
	UserID string `json:"userId"`
}

// NewManager constructs a Manager with the given session TTL.
func NewManager(store kv.Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl}
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Create issues a fresh opaque token for userID and stores the mapping
// with the session TTL.
func (m *Manager) Create(ctx context.Context, userID string) (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	payload, err := json.Marshal(sessionData{UserID: userID})
	if err != nil {
		return "", err
	}
	if err := m.store.Put(ctx, keyPrefix+token, payload, m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Authenticate resolves token to a user ID, or ErrUnauthenticated.
func (m *Manager) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	raw, ok, err := m.store.Get(ctx, keyPrefix+token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnauthenticated
	}
	var data sessionData
	if err := json.Unmarshal(raw, &data); err != nil || data.UserID == "" {
		return "", ErrUnauthenticated
	}
	return data.UserID, nil
}

// Destroy deletes the session for token. Destroying an absent token is
// not an error; once destroyed, the token must never resolve again.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, keyPrefix+token)
}
