package app

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8787" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LinkTTL != 60*time.Second {
		t.Fatalf("LinkTTL = %v", cfg.LinkTTL)
	}
	if cfg.LinkRetention != 24*time.Hour {
		t.Fatalf("LinkRetention = %v", cfg.LinkRetention)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.SyncTTL != 300*time.Second {
		t.Fatalf("SyncTTL = %v", cfg.SyncTTL)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL should default to empty (in-memory mode)")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("HP_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("HP_LINK_TTL", "90s")
	t.Setenv("HP_DB_SCHEMA", "hp_test")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LinkTTL != 90*time.Second {
		t.Fatalf("LinkTTL = %v", cfg.LinkTTL)
	}
	if cfg.DBSchema != "hp_test" {
		t.Fatalf("DBSchema = %q", cfg.DBSchema)
	}
}

func TestEnvHelpersRejectGarbage(t *testing.T) {
	t.Setenv("HP_TEST_INT", "not-a-number")
	if got := EnvInt("HP_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt = %d", got)
	}
	t.Setenv("HP_TEST_DUR", "-5s")
	if got := EnvDuration("HP_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("EnvDuration = %v", got)
	}
	t.Setenv("HP_TEST_BOOL", "maybe")
	if got := EnvBool("HP_TEST_BOOL", true); got != true {
		t.Fatalf("EnvBool = %v", got)
	}
}

func TestNewInMemoryModeWiresWithoutDB(t *testing.T) {
	cfg := LoadConfig()
	cfg.DatabaseURL = ""

	a, err := New(cfg, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.dbEnabled {
		t.Fatalf("dbEnabled must be false without a database URL")
	}
	if a.api == nil {
		t.Fatalf("api handler not wired")
	}
}

func TestWithRequestLoggingPreservesStatus(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), log)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(buf.String(), `"status":418`) {
		t.Fatalf("log line missing status: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "http.request") {
		t.Fatalf("log line missing event name: %s", buf.String())
	}
}

func TestPrettyHandlerOutput(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	log.Info("server.start", "addr", "0.0.0.0:8787")

	out := buf.String()
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "server.start") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "addr=0.0.0.0:8787") {
		t.Fatalf("attr missing: %q", out)
	}

	buf.Reset()
	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug must be filtered at info level: %q", buf.String())
	}
}
