package syncbroker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"humanpass/cmd/internal/kv"
)

const testToken = "0123456789abcdef0123456789abcdef"

func TestPollAbsentMailboxIsPending(t *testing.T) {
	ctx := context.Background()
	b := New(kv.NewMemoryStore(), 0)

	status, _, err := b.Poll(ctx, testToken)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != StatusPending {
		t.Fatalf("expected pending, got %v", status)
	}
}

func TestScanThenPublishProgression(t *testing.T) {
	ctx := context.Background()
	b := New(kv.NewMemoryStore(), 0)

	if err := b.MarkScanned(ctx, testToken); err != nil {
		t.Fatalf("mark scanned: %v", err)
	}
	status, _, err := b.Poll(ctx, testToken)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != StatusScanned {
		t.Fatalf("expected scanned, got %v", status)
	}

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := b.Publish(ctx, testToken, "https://example.com/v/x", "20260301-1200-abcd", created); err != nil {
		t.Fatalf("publish: %v", err)
	}
	status, rec, err := b.Poll(ctx, testToken)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != StatusComplete {
		t.Fatalf("expected complete, got %v", status)
	}
	if rec.ShortCode != "20260301-1200-abcd" || rec.URL != "https://example.com/v/x" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.CreatedAt.Equal(created) {
		t.Fatalf("createdAt mismatch: %v", rec.CreatedAt)
	}
}

func TestMarkScannedDoesNotDowngradeComplete(t *testing.T) {
	ctx := context.Background()
	b := New(kv.NewMemoryStore(), 0)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := b.Publish(ctx, testToken, "https://example.com/v/x", "code", created); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := b.MarkScanned(ctx, testToken); err != nil {
		t.Fatalf("mark scanned: %v", err)
	}

	status, _, err := b.Poll(ctx, testToken)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != StatusComplete {
		t.Fatalf("complete mailbox must stay complete, got %v", status)
	}
}

func TestMailboxExpiresBackToPending(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	b := New(store, 300*time.Second)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store.SetClock(func() time.Time { return now })

	if err := b.MarkScanned(ctx, testToken); err != nil {
		t.Fatalf("mark scanned: %v", err)
	}

	now = base.Add(301 * time.Second)
	status, _, err := b.Poll(ctx, testToken)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != StatusPending {
		t.Fatalf("expired mailbox must read as pending, got %v", status)
	}
}

func TestShortTokenRejected(t *testing.T) {
	ctx := context.Background()
	b := New(kv.NewMemoryStore(), 0)

	short := "abc"
	if _, _, err := b.Poll(ctx, short); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("poll: expected ErrInvalidToken, got %v", err)
	}
	if err := b.MarkScanned(ctx, short); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("mark scanned: expected ErrInvalidToken, got %v", err)
	}
	if err := b.Publish(ctx, short, "u", "c", time.Now()); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("publish: expected ErrInvalidToken, got %v", err)
	}
}

func TestNewTokenLengthAndCharset(t *testing.T) {
	token, err := NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if len(token) < MinTokenLength {
		t.Fatalf("token %q shorter than %d", token, MinTokenLength)
	}
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("token %q not URL-safe", token)
	}
}

func TestCorruptMailboxReadsAsPending(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	b := New(store, 0)

	if err := store.Put(ctx, "sync:"+testToken, []byte("{nope"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	status, _, err := b.Poll(ctx, testToken)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != StatusPending {
		t.Fatalf("corrupt mailbox must read as pending, got %v", status)
	}
}
