// Package syncbroker implements the cross-device handoff mailbox.
//
// A desktop browser generates an opaque token, renders it as a QR code,
// and polls the mailbox. The phone that scans the code first marks the
// mailbox "scanned" and later, once a link exists, publishes the link
// into it. The mailbox lives in the TTL store and evaporates on its
// own; the broker never deletes entries.
package syncbroker

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"humanpass/cmd/internal/kv"
)

// MinTokenLength is the shortest token the broker accepts. Shorter
// tokens are guessable and are rejected before touching the store.
const MinTokenLength = 32

const (
	keyPrefix  = "sync:"
	tokenBytes = 24

	// DefaultTTL bounds how long a mailbox survives between writes.
	DefaultTTL = 300 * time.Second
)

// ErrInvalidToken reports a token below the minimum length.
var ErrInvalidToken = errors.New("syncbroker: token too short")

// Status is the observable state of a mailbox.
type Status int

const (
	// StatusPending means no device has written to the mailbox yet
	// (or the mailbox expired, which is indistinguishable by design).
	StatusPending Status = iota
	// StatusScanned means a phone has scanned the QR code but has not
	// published a link yet.
	StatusScanned
	// StatusComplete means a link has been published.
	StatusComplete
)

// String renders the status for logs and the wire.
func (s Status) String() string {
	switch s {
	case StatusScanned:
		return "scanned"
	case StatusComplete:
		return "complete"
	default:
		return "pending"
	}
}

// Record is the mailbox payload. Scanned-only records carry just the
// flag; published records carry the link fields.
type Record struct {
	Scanned   bool      `json:"scanned,omitempty"`
	URL       string    `json:"url,omitempty"`
	ShortCode string    `json:"shortCode,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Broker mediates mailbox reads and writes over the TTL store.
type Broker struct {
	store kv.Store
	ttl   time.Duration
}

// New constructs a Broker. A non-positive ttl falls back to DefaultTTL.
func New(store kv.Store, ttl time.Duration) *Broker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Broker{store: store, ttl: ttl}
}

// NewToken returns a fresh URL-safe mailbox token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func validToken(token string) bool {
	return len(token) >= MinTokenLength
}

// MarkScanned flags the mailbox as scanned. It refuses to downgrade a
// published mailbox back to scanned.
func (b *Broker) MarkScanned(ctx context.Context, token string) error {
	if !validToken(token) {
		return ErrInvalidToken
	}

	status, _, err := b.Poll(ctx, token)
	if err != nil {
		return err
	}
	if status == StatusComplete {
		return nil
	}

	payload, err := json.Marshal(Record{Scanned: true})
	if err != nil {
		return err
	}
	return b.store.Put(ctx, keyPrefix+token, payload, b.ttl)
}

// Publish writes the link into the mailbox, replacing any scanned
// marker. The write restarts the TTL clock.
func (b *Broker) Publish(ctx context.Context, token, url, shortCode string, createdAt time.Time) error {
	if !validToken(token) {
		return ErrInvalidToken
	}

	payload, err := json.Marshal(Record{
		URL:       url,
		ShortCode: shortCode,
		CreatedAt: createdAt,
	})
	if err != nil {
		return err
	}
	return b.store.Put(ctx, keyPrefix+token, payload, b.ttl)
}

// Poll reads the mailbox and reports its state. An absent or expired
// mailbox is StatusPending; a corrupt payload is treated the same so a
// poller can keep going.
func (b *Broker) Poll(ctx context.Context, token string) (Status, Record, error) {
	if !validToken(token) {
		return StatusPending, Record{}, ErrInvalidToken
	}

	raw, ok, err := b.store.Get(ctx, keyPrefix+token)
	if err != nil {
		return StatusPending, Record{}, err
	}
	if !ok {
		return StatusPending, Record{}, nil
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return StatusPending, Record{}, nil
	}
	if rec.ShortCode != "" || rec.URL != "" {
		return StatusComplete, rec, nil
	}
	if rec.Scanned {
		return StatusScanned, rec, nil
	}
	return StatusPending, Record{}, nil
}
