package api

import (
	"net/http"
	"strings"
)

// openPrefixes are API paths any origin may call: third-party sites
// embed verification checks, and the sync channel pairs two devices
// that rarely share an origin.
var openPrefixes = []string{"/api/v1/verify/", "/api/v1/sync/"}

func isOpenPath(path string) bool {
	for _, p := range openPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// WithCORS wraps the mux with the origin policy: open endpoints echo
// the caller's origin (with preflight support); every other /api path
// rejects cross-origin requests outright. Non-API paths are untouched.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		origin := r.Header.Get("Origin")

		if isOpenPath(path) {
			if r.Method == http.MethodOptions {
				h := w.Header()
				if origin != "" {
					h.Set("Access-Control-Allow-Origin", origin)
				} else {
					h.Set("Access-Control-Allow-Origin", "*")
				}
				h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				h.Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			next.ServeHTTP(w, r)
			return
		}

		if strings.HasPrefix(path, "/api/") {
			if origin != "" && origin != originFromHost(r.Host) {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
