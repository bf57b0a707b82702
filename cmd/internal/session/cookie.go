package session

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// CookieName is the canonical session cookie name.
const CookieName = "session"

// ReadCookie returns the trimmed session cookie value when present.
func ReadCookie(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	c, err := r.Cookie(CookieName)
	if err != nil || c == nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	if v == "" {
		return "", false
	}
	return v, true
}

// SetCookie writes the session cookie for token.
//
// Policy: HttpOnly, SameSite=Strict, whole-path scope, Max-Age equal to
// the session TTL, and Secure whenever the serving host is not a
// loopback/development name.
func SetCookie(w http.ResponseWriter, host, token string, ttl time.Duration) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   !IsDevHost(host),
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, host string) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !IsDevHost(host),
		SameSite: http.SameSiteStrictMode,
	})
}

// IsDevHost reports whether host (optionally host:port) is a loopback or
// development name, where the Secure cookie attribute would break plain
// HTTP flows.
func IsDevHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSpace(host))
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}
