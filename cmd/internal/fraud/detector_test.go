package fraud

import (
	"context"
	"testing"
	"time"

	"humanpass/cmd/internal/kv"
)

func TestCheckPinsFirstOrigin(t *testing.T) {
	ctx := context.Background()
	d := New(kv.NewMemoryStore(), 0)

	fraud, err := d.Check(ctx, "code1", "https://forum.example/thread/42")
	if err != nil || fraud {
		t.Fatalf("first referer must be ok, got fraud=%v err=%v", fraud, err)
	}

	fraud, err = d.Check(ctx, "code1", "https://forum.example/other/page")
	if err != nil || fraud {
		t.Fatalf("same origin must stay ok, got fraud=%v err=%v", fraud, err)
	}

	fraud, err = d.Check(ctx, "code1", "https://evil.example/spam")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !fraud {
		t.Fatalf("different origin must be flagged as fraud")
	}
}

func TestCheckNoRefererNeverFlipsPin(t *testing.T) {
	ctx := context.Background()
	d := New(kv.NewMemoryStore(), 0)

	if fraud, _ := d.Check(ctx, "code2", ""); fraud {
		t.Fatalf("no referer must be ok")
	}
	if fraud, _ := d.Check(ctx, "code2", "https://a.example/"); fraud {
		t.Fatalf("first referer must be ok")
	}
	if fraud, _ := d.Check(ctx, "code2", ""); fraud {
		t.Fatalf("interleaved no-referer visit must be ok")
	}
	if fraud, _ := d.Check(ctx, "code2", "https://a.example/page"); fraud {
		t.Fatalf("pinned origin must still be ok after no-referer visits")
	}
	if fraud, _ := d.Check(ctx, "code2", "https://b.example/"); !fraud {
		t.Fatalf("different origin must still be flagged")
	}
}

func TestCheckUnparsableRefererIsOk(t *testing.T) {
	ctx := context.Background()
	d := New(kv.NewMemoryStore(), 0)

	if fraud, err := d.Check(ctx, "code3", "not a url"); err != nil || fraud {
		t.Fatalf("unparsable referer must be ok, got fraud=%v err=%v", fraud, err)
	}

	// The garbage value must not have pinned anything.
	if fraud, _ := d.Check(ctx, "code3", "https://first.example/"); fraud {
		t.Fatalf("first real referer must establish the pin")
	}
}

func TestCheckPinExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	d := New(store, 300*time.Second)

	if fraud, _ := d.Check(ctx, "code4", "https://a.example/"); fraud {
		t.Fatalf("first referer must be ok")
	}

	now = now.Add(301 * time.Second)

	// Pin expired: a new origin re-establishes the baseline.
	if fraud, _ := d.Check(ctx, "code4", "https://b.example/"); fraud {
		t.Fatalf("expired pin must reset, not flag")
	}
	if fraud, _ := d.Check(ctx, "code4", "https://a.example/"); !fraud {
		t.Fatalf("old origin must now be the odd one out")
	}
}
