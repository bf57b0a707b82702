package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"humanpass/cmd/internal/fraud"
	"humanpass/cmd/internal/link"
	"humanpass/cmd/internal/passkey"
	"humanpass/cmd/internal/ratelimit"
	"humanpass/cmd/internal/session"
	"humanpass/cmd/internal/syncbroker"
)

// Handler wires the HTTP endpoints to the domain services.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions *session.Manager
	links    *link.Service
	limiter  *ratelimit.Limiter
	fraud    *fraud.Detector
	broker   *syncbroker.Broker
	verifier *passkey.Verifier
	syncWS   http.Handler
}

// NewHandler constructs the API handler.
func NewHandler(
	log *slog.Logger,
	cfg Config,
	sessions *session.Manager,
	links *link.Service,
	limiter *ratelimit.Limiter,
	detector *fraud.Detector,
	broker *syncbroker.Broker,
	verifier *passkey.Verifier,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		links:    links,
		limiter:  limiter,
		fraud:    detector,
		broker:   broker,
		verifier: verifier,
		syncWS:   syncbroker.NewWSHandler(log, broker),
	}
}

// Register wires all routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}

	mux.HandleFunc("GET /api/v1/verify/{code}", h.handleVerifyAPI)
	mux.HandleFunc("GET /api/v1/sync/{token}", h.handleSyncPoll)
	mux.Handle("GET /api/v1/sync/{token}/ws", h.syncWS)
	mux.HandleFunc("GET /api/v1/stats", h.handleStats)

	mux.HandleFunc("POST /api/v1/links", h.handleLinkCreate)
	mux.HandleFunc("GET /api/v1/links", h.handleLinkList)
	mux.HandleFunc("PATCH /api/v1/links/{code}", h.handleLinkRename)

	mux.HandleFunc("POST /api/v1/auth/register/options", h.handleRegisterOptions)
	mux.HandleFunc("POST /api/v1/auth/register/verify", h.handleRegisterVerify)
	mux.HandleFunc("POST /api/v1/auth/pass/options", h.handleLoginOptions)
	mux.HandleFunc("POST /api/v1/auth/pass/verify", h.handleLoginVerify)
	mux.HandleFunc("POST /api/v1/auth/reset", h.handleAuthReset)

	mux.HandleFunc("GET /v/{code}", h.handleVerifyPage)
	mux.HandleFunc("GET /app", h.handleAppPage)
	mux.HandleFunc("GET /{$}", h.handleHomePage)
}

// originFromHost derives the service's own origin from the request
// Host: http for localhost and loopback, https otherwise.
func originFromHost(host string) string {
	if strings.TrimSpace(host) == "" {
		host = "localhost:8787"
	}
	scheme := "https"
	if session.IsDevHost(host) {
		scheme = "http"
	}
	return scheme + "://" + host
}

// clientIP identifies the caller for rate limiting. Only proxy-set
// headers are trusted; everything else collapses onto one loopback
// identifier so untraceable clients share a single counter.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return "127.0.0.1"
}

// admit applies a rate-limit rule to the request. It writes the 429
// response itself and returns false when the caller must stop. Limiter
// failures fail open; the limiter is best-effort by contract.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, rule ratelimit.Rule) bool {
	ok, err := h.limiter.Admit(r.Context(), clientIP(r, h.cfg.TrustProxy), rule)
	if err != nil {
		h.log.Error("ratelimit.check.fail", "operation", rule.Prefix, "err", err)
		return true
	}
	if !ok {
		metricRateLimited.WithLabelValues(rule.Prefix).Inc()
		writeError(w, http.StatusTooManyRequests, "Too many requests. Try again later.")
		return false
	}
	return true
}

// authenticate resolves the session cookie to a user ID. Absence of a
// cookie, or a cookie with no backing session, both come back as
// session.ErrUnauthenticated; the stale cookie is cleared on the way.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, error) {
	token, ok := session.ReadCookie(r)
	if !ok {
		return "", session.ErrUnauthenticated
	}
	userID, err := h.sessions.Authenticate(r.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrUnauthenticated) {
			session.ClearCookie(w, r.Host)
		}
		return "", err
	}
	return userID, nil
}

// requireSession is authenticate plus the redirect contract: requests
// without a valid session are sent to the landing page, not an error.
func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := h.authenticate(w, r)
	if err == nil {
		return userID, true
	}
	if !errors.Is(err, session.ErrUnauthenticated) {
		h.log.Error("session.check.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return "", false
	}
	http.Redirect(w, r, "/", http.StatusFound)
	return "", false
}

// startSession creates a session for the user and sets the cookie.
func (h *Handler) startSession(ctx context.Context, w http.ResponseWriter, host, userID string) error {
	token, err := h.sessions.Create(ctx, userID)
	if err != nil {
		return err
	}
	session.SetCookie(w, host, token, h.sessions.TTL())
	return nil
}
