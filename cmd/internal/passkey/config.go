// Package passkey wraps the WebAuthn ceremony plumbing: relying-party
// context, challenge storage, credential persistence, and the emulator
// blocklist. The cryptographic verification itself is delegated to
// github.com/go-webauthn/webauthn.
package passkey

import (
	"os"
	"strings"
	"time"
)

// Config controls relying-party settings and challenge lifetime.
type Config struct {
	RPDisplayName string
	RPID          string
	RPOrigin      string
	ChallengeTTL  time.Duration
}

// LoadConfigFromEnv returns passkey configuration with defaults suitable
// for local development.
func LoadConfigFromEnv() Config {
	return Config{
		RPDisplayName: envStr("HP_WEBAUTHN_RP_NAME", "Humanpass"),
		RPID:          envStr("HP_WEBAUTHN_RP_ID", "localhost"),
		RPOrigin:      envStr("HP_WEBAUTHN_RP_ORIGIN", "http://localhost:8787"),
		ChallengeTTL:  envDur("HP_WEBAUTHN_CHALLENGE_TTL", 300*time.Second),
	}
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
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
