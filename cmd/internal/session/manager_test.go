package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"humanpass/cmd/internal/kv"
)

func TestCreateAuthenticateDestroy(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemoryStore(), 24*time.Hour)

	token, err := m.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(token) < 32 {
		t.Fatalf("token too short: %d chars", len(token))
	}

	userID, err := m.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %q", userID)
	}

	if err := m.Destroy(ctx, token); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := m.Authenticate(ctx, token); err != ErrUnauthenticated {
		t.Fatalf("destroyed token must never resolve again, got err=%v", err)
	}
	if err := m.Destroy(ctx, token); err != nil {
		t.Fatalf("destroy must be idempotent: %v", err)
	}
}

func TestAuthenticateExpiredSession(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	m := NewManager(store, time.Hour)
	token, err := m.Create(ctx, "user-2")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	now = now.Add(61 * time.Minute)
	if _, err := m.Authenticate(ctx, token); err != ErrUnauthenticated {
		t.Fatalf("expired session must be unauthenticated, got err=%v", err)
	}
}

func TestAuthenticateUnknownToken(t *testing.T) {
	m := NewManager(kv.NewMemoryStore(), time.Hour)
	if _, err := m.Authenticate(context.Background(), "nope"); err != ErrUnauthenticated {
		t.Fatalf("unknown token: got err=%v", err)
	}
	if _, err := m.Authenticate(context.Background(), ""); err != ErrUnauthenticated {
		t.Fatalf("empty token: got err=%v", err)
	}
}

func TestSetCookiePolicy(t *testing.T) {
	rec := httptest.NewRecorder()
	SetCookie(rec, "humanpass.example", "tok", 24*time.Hour)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != CookieName || c.Value != "tok" {
		t.Fatalf("unexpected cookie %q=%q", c.Name, c.Value)
	}
	if !c.HttpOnly || c.SameSite != http.SameSiteStrictMode || c.Path != "/" {
		t.Fatalf("cookie attributes wrong: %+v", c)
	}
	if c.MaxAge != 86400 {
		t.Fatalf("expected Max-Age 86400, got %d", c.MaxAge)
	}
	if !c.Secure {
		t.Fatalf("cookie must be Secure on a non-dev host")
	}
}

func TestSetCookieDevHostNotSecure(t *testing.T) {
	rec := httptest.NewRecorder()
	SetCookie(rec, "localhost:8787", "tok", time.Hour)
	if rec.Result().Cookies()[0].Secure {
		t.Fatalf("cookie must not be Secure on localhost")
	}
}

func TestIsDevHost(t *testing.T) {
	for _, host := range []string{"localhost", "localhost:8787", "127.0.0.1", "127.0.0.1:80", "app.localhost", ""} {
		if !IsDevHost(host) {
			t.Fatalf("expected %q to be a dev host", host)
		}
	}
	for _, host := range []string{"humanpass.example", "example.com:443", "10.0.0.1"} {
		if IsDevHost(host) {
			t.Fatalf("expected %q not to be a dev host", host)
		}
	}
}

func TestClearCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearCookie(rec, "humanpass.example")
	c := rec.Result().Cookies()[0]
	if c.Value != "" || c.MaxAge != -1 {
		t.Fatalf("clear must expire the cookie, got %+v", c)
	}
}
