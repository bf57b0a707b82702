package kv

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	if err := s.Put(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected value, got ok=%v err=%v", ok, err)
	}
	if string(v) != "v1" {
		t.Fatalf("expected v1, got %q", v)
	}

	if err := s.Put(ctx, "k", []byte("v2"), 0); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, _, _ = s.Get(ctx, "k")
	if string(v) != "v2" {
		t.Fatalf("expected last write to win, got %q", v)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected key gone after delete")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete must be idempotent: %v", err)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	if err := s.Put(ctx, "k", []byte("v"), 60*time.Second); err != nil {
		t.Fatalf("put: %v", err)
	}

	now = now.Add(59 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatalf("expected key alive before TTL")
	}

	now = now.Add(2 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected key expired after TTL")
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	in := []byte("abc")
	if err := s.Put(ctx, "k", in, 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	in[0] = 'x'

	out, _, _ := s.Get(ctx, "k")
	if string(out) != "abc" {
		t.Fatalf("stored value must not alias caller slice, got %q", out)
	}
	out[0] = 'y'

	again, _, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("returned value must not alias stored slice, got %q", again)
	}
}
