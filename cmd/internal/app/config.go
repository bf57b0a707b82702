package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Lifecycle windows. LinkTTL is the reuse window, not record
	// lifetime; records survive until LinkRetention.
	LinkTTL       time.Duration
	LinkRetention time.Duration
	SessionTTL    time.Duration
	SyncTTL       time.Duration
	RefererPinTTL time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("HP_HTTP_ADDR", "0.0.0.0:8787"),
		LogLevel:  EnvString("HP_LOG_LEVEL", "info"),
		LogFormat: EnvString("HP_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("HP_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("HP_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("HP_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("HP_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("HP_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("HP_DATABASE_URL", ""),
		DBSchema:    EnvString("HP_DB_SCHEMA", "humanpass"),
		DBMaxConns:  EnvInt32("HP_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("HP_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("HP_READINESS_REQUIRE_DB", false),

		LinkTTL:       EnvDuration("HP_LINK_TTL", 60*time.Second),
		LinkRetention: EnvDuration("HP_LINK_RETENTION", 24*time.Hour),
		SessionTTL:    EnvDuration("HP_SESSION_TTL", 24*time.Hour),
		SyncTTL:       EnvDuration("HP_SYNC_TTL", 300*time.Second),
		RefererPinTTL: EnvDuration("HP_REFERER_PIN_TTL", 300*time.Second),
	}
}
