package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"humanpass/cmd/internal/fraud"
	"humanpass/cmd/internal/kv"
	"humanpass/cmd/internal/link"
	"humanpass/cmd/internal/passkey"
	"humanpass/cmd/internal/ratelimit"
	"humanpass/cmd/internal/session"
	"humanpass/cmd/internal/syncbroker"
)

const testSyncToken = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	handler  http.Handler
	sessions *session.Manager
	links    *link.Service
	broker   *syncbroker.Broker
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	kvStore := kv.NewMemoryStore()
	sessions := session.NewManager(kvStore, 24*time.Hour)
	links := link.NewService(link.DefaultConfig(), link.NewMemoryStore())
	limiter := ratelimit.New(kvStore)
	detector := fraud.New(kvStore, 300*time.Second)
	broker := syncbroker.New(kvStore, 300*time.Second)
	verifier := passkey.NewVerifier(passkey.LoadConfigFromEnv(), passkey.NewMemoryStore(), kvStore)

	h := NewHandler(nil, cfg, sessions, links, limiter, detector, broker, verifier)
	mux := http.NewServeMux()
	h.Register(mux)

	return &testEnv{
		handler:  WithCORS(mux),
		sessions: sessions,
		links:    links,
		broker:   broker,
	}
}

func (e *testEnv) sessionCookie(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	token, err := e.sessions.Create(context.Background(), userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return &http.Cookie{Name: session.CookieName, Value: token}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func TestVerifyUnknownCode(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/verify/nope", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp verifyResponse
	decodeBody(t, rec, &resp)
	if resp.Verified {
		t.Fatalf("unknown code must not verify")
	}
	if resp.Fraud || resp.LabelMismatch {
		t.Fatalf("unknown code must not leak a reason: %+v", resp)
	}
}

func TestVerifyRefererFraud(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())
	l, _, err := env.links.IssueOrReuse(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verify/"+l.ShortCode, nil)
	req.Header.Set("Referer", "https://site-a.example/page")
	rec := env.do(req)
	var resp verifyResponse
	decodeBody(t, rec, &resp)
	if !resp.Verified {
		t.Fatalf("first referer must pass: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/verify/"+l.ShortCode, nil)
	req.Header.Set("Referer", "https://site-b.example/other")
	rec = env.do(req)
	decodeBody(t, rec, &resp)
	if resp.Verified || !resp.Fraud {
		t.Fatalf("second origin must flag fraud: %+v", resp)
	}
}

func TestVerifyLabelMismatch(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())
	l, _, err := env.links.IssueOrReuse(context.Background(), "user-1", "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/verify/"+l.ShortCode+"?label=bob", nil))
	var resp verifyResponse
	decodeBody(t, rec, &resp)
	if resp.Verified || !resp.LabelMismatch {
		t.Fatalf("expected label mismatch: %+v", resp)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/verify/"+l.ShortCode+"?label=alice", nil))
	decodeBody(t, rec, &resp)
	if !resp.Verified || resp.Label != "alice" {
		t.Fatalf("matching label must verify: %+v", resp)
	}
}

func TestVerifyPageStatuses(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())
	l, _, err := env.links.IssueOrReuse(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if rec := env.do(httptest.NewRequest(http.MethodGet, "/v/nope", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown code page status = %d", rec.Code)
	}

	if rec := env.do(httptest.NewRequest(http.MethodGet, "/v/"+l.ShortCode, nil)); rec.Code != http.StatusOK {
		t.Fatalf("verify page status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v/"+l.ShortCode, nil)
	req.Header.Set("Referer", "https://site-a.example/")
	env.do(req)
	req = httptest.NewRequest(http.MethodGet, "/v/"+l.ShortCode, nil)
	req.Header.Set("Referer", "https://site-b.example/")
	if rec := env.do(req); rec.Code != http.StatusForbidden {
		t.Fatalf("fraud page status = %d", rec.Code)
	}
}

func TestSyncPollContract(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())
	ctx := context.Background()

	if rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/sync/short", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("short token status = %d", rec.Code)
	}

	var resp syncResponse
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/sync/"+testSyncToken, nil))
	decodeBody(t, rec, &resp)
	if resp.Ready || resp.Scanned {
		t.Fatalf("fresh mailbox: %+v", resp)
	}

	if err := env.broker.MarkScanned(ctx, testSyncToken); err != nil {
		t.Fatalf("mark scanned: %v", err)
	}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/sync/"+testSyncToken, nil))
	decodeBody(t, rec, &resp)
	if resp.Ready || !resp.Scanned {
		t.Fatalf("scanned mailbox: %+v", resp)
	}

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := env.broker.Publish(ctx, testSyncToken, "https://example.com/v/x", "x", created); err != nil {
		t.Fatalf("publish: %v", err)
	}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/sync/"+testSyncToken, nil))
	decodeBody(t, rec, &resp)
	if !resp.Ready || resp.ShortCode != "x" || resp.URL == "" {
		t.Fatalf("published mailbox: %+v", resp)
	}
}

func TestLinkCreateRequiresSession(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/links", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want redirect", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Fatalf("redirect location = %q", loc)
	}
}

func TestLinkCreateReuseAndList(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())
	cookie := env.sessionCookie(t, "user-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/links", strings.NewReader(`{"label":"my site"}`))
	req.AddCookie(cookie)
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d body %s", rec.Code, rec.Body.String())
	}
	var first linkResponse
	decodeBody(t, rec, &first)
	if first.ShortCode == "" || !strings.HasSuffix(first.URL, "/v/"+first.ShortCode) {
		t.Fatalf("bad link response: %+v", first)
	}
	if first.Label != "my site" {
		t.Fatalf("label = %q", first.Label)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/links", nil)
	req.AddCookie(cookie)
	var second linkResponse
	decodeBody(t, env.do(req), &second)
	if second.ShortCode != first.ShortCode {
		t.Fatalf("immediate re-create must reuse, got %q then %q", first.ShortCode, second.ShortCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/links", nil)
	req.AddCookie(cookie)
	rec = env.do(req)
	var list []linkResponse
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].ShortCode != first.ShortCode {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestLinkCreatePublishesSyncMailbox(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())
	cookie := env.sessionCookie(t, "user-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/links", strings.NewReader(`{"syncToken":"`+testSyncToken+`"}`))
	req.AddCookie(cookie)
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d", rec.Code)
	}
	var resp linkResponse
	decodeBody(t, rec, &resp)

	status, mail, err := env.broker.Poll(context.Background(), testSyncToken)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != syncbroker.StatusComplete || mail.ShortCode != resp.ShortCode {
		t.Fatalf("mailbox not published: status=%v mail=%+v", status, mail)
	}
}

func TestLinkRename(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())
	cookie := env.sessionCookie(t, "user-1")
	l, _, err := env.links.IssueOrReuse(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/links/"+l.ShortCode, strings.NewReader(`{"label":"renamed"}`))
	req.AddCookie(cookie)
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK    bool   `json:"ok"`
		Label string `json:"label"`
	}
	decodeBody(t, rec, &resp)
	if !resp.OK || resp.Label != "renamed" {
		t.Fatalf("rename body = %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "shortCode") {
		t.Fatalf("rename body must not carry the link object: %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPatch, "/api/v1/links/nope", strings.NewReader(`{"label":"x"}`))
	req.AddCookie(cookie)
	if rec := env.do(req); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown code rename status = %d", rec.Code)
	}
}

func TestLinkCreateMalformedBody(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())
	cookie := env.sessionCookie(t, "user-1")

	// No body at all is fine.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/links", nil)
	req.AddCookie(cookie)
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Fatalf("empty body status = %d", rec.Code)
	}

	// A body that fails to parse must not be swallowed; a garbled
	// syncToken would otherwise skip the publish without any signal.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/links", strings.NewReader(`{"syncToken":`))
	req.AddCookie(cookie)
	rec := env.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", rec.Code)
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Error != "Invalid body" {
		t.Fatalf("malformed body error = %q", resp.Error)
	}
}

func TestLinkCreateRateLimited(t *testing.T) {
	cfg := LoadConfigFromEnv()
	cfg.LinkLimit = ratelimit.Rule{Prefix: "links", Max: 1, Window: time.Hour}
	env := newTestEnv(t, cfg)
	cookie := env.sessionCookie(t, "user-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/links", nil)
	req.AddCookie(cookie)
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Fatalf("first create status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/links", nil)
	req.AddCookie(cookie)
	rec := env.do(req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second create status = %d, want 429", rec.Code)
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Error == "" {
		t.Fatalf("429 body must carry an error message")
	}
}

func TestCORSPolicy(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sync/"+testSyncToken, nil)
	req.Header.Set("Origin", "https://third-party.example")
	rec := env.do(req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://third-party.example" {
		t.Fatalf("preflight ACAO = %q", got)
	}
	if rec.Header().Get("Access-Control-Max-Age") != "86400" {
		t.Fatalf("preflight max-age missing")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/verify/whatever", nil)
	req.Header.Set("Origin", "https://third-party.example")
	rec = env.do(req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://third-party.example" {
		t.Fatalf("verify ACAO = %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/links", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = env.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cross-origin links status = %d, want 403", rec.Code)
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Error != "Forbidden" {
		t.Fatalf("forbidden body = %q", resp.Error)
	}

	// Same-origin API calls pass. Request host is example.com, so the
	// expected origin is https://example.com.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/reset", nil)
	req.Header.Set("Origin", "https://example.com")
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Fatalf("same-origin status = %d", rec.Code)
	}
}

func TestAuthResetIdempotent(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/auth/reset", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset without session status = %d", rec.Code)
	}

	cookie := env.sessionCookie(t, "user-1")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/reset", nil)
	req.AddCookie(cookie)
	rec = env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/links", nil)
	req.AddCookie(cookie)
	if rec := env.do(req); rec.Code != http.StatusFound {
		t.Fatalf("destroyed session must redirect, got %d", rec.Code)
	}
}

func TestAppPageMarksScannedWithoutSession(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())

	rec := env.do(httptest.NewRequest(http.MethodGet, "/app?sync="+testSyncToken, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("auth page status = %d", rec.Code)
	}

	status, _, err := env.broker.Poll(context.Background(), testSyncToken)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != syncbroker.StatusScanned {
		t.Fatalf("mailbox status = %v, want scanned", status)
	}
}

func TestAppPagePublishesWithSession(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())
	cookie := env.sessionCookie(t, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/app?sync="+testSyncToken, nil)
	req.AddCookie(cookie)
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("app page status = %d", rec.Code)
	}

	status, mail, err := env.broker.Poll(context.Background(), testSyncToken)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != syncbroker.StatusComplete || mail.URL == "" {
		t.Fatalf("mailbox status = %v mail = %+v, want complete", status, mail)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, LoadConfigFromEnv())
	if _, _, err := env.links.IssueOrReuse(context.Background(), "user-1", ""); err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var resp map[string]int64
	decodeBody(t, rec, &resp)
	if resp["verifications"] != 1 {
		t.Fatalf("verifications = %d", resp["verifications"])
	}
}
