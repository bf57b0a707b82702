// Package api is the HTTP surface: verify and sync endpoints open to
// any origin, session-gated link management, passkey ceremonies, and
// the minimal HTML pages.
package api

import (
	"os"
	"strconv"
	"strings"
	"time"

	"humanpass/cmd/internal/ratelimit"
)

// Config controls API behavior and abuse limits.
type Config struct {
	// TrustProxy enables client-IP extraction from proxy headers
	// (CF-Connecting-IP, then X-Real-IP). Off by default; without a
	// trusted header all clients share one loopback identifier.
	TrustProxy   bool
	MaxBodyBytes int64

	LinkLimit     ratelimit.Rule
	LoginLimit    ratelimit.Rule
	RegisterLimit ratelimit.Rule
}

// LoadConfigFromEnv loads API config from environment variables with
// safe defaults.
func LoadConfigFromEnv() Config {
	return Config{
		TrustProxy:   envBool("HP_API_TRUST_PROXY", false),
		MaxBodyBytes: envInt64("HP_API_MAX_BODY_BYTES", 1<<20), // 1 MiB

		LinkLimit: ratelimit.Rule{
			Prefix: "links",
			Max:    envInt("HP_RATE_LINKS_MAX", 30),
			Window: envDuration("HP_RATE_LINKS_WINDOW", time.Hour),
		},
		LoginLimit: ratelimit.Rule{
			Prefix: "login",
			Max:    envInt("HP_RATE_LOGIN_MAX", 20),
			Window: envDuration("HP_RATE_LOGIN_WINDOW", time.Hour),
		},
		RegisterLimit: ratelimit.Rule{
			Prefix: "register",
			Max:    envInt("HP_RATE_REGISTER_MAX", 3),
			Window: envDuration("HP_RATE_REGISTER_WINDOW", 24*time.Hour),
		},
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
