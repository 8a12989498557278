package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
  rate_limit: 2
  cors_origins: ["http://localhost:3000"]
  shutdown_timeout: 3
  max_body_bytes: 4096
database:
  dsn: host=db user=q dbname=q
log:
  level: debug
  development: true
backtest:
  risk_pct: 0.5
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Port != 8080 || cfg.RateLimit != 2 || cfg.RateBurst != DefaultConfig.RateBurst {
		t.Fatalf("unexpected server section: %#v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" || cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("unexpected server section: %#v", cfg)
	}
	if cfg.MaxBodyBytes != 4096 {
		t.Fatalf("unexpected body limit: %d", cfg.MaxBodyBytes)
	}
	if cfg.DSN != "host=db user=q dbname=q" || cfg.LogLevel != "debug" || !cfg.LogDevelopment {
		t.Fatalf("unexpected db/log section: %#v", cfg)
	}
	if cfg.RiskPct != 0.5 || cfg.StartingBalance != 10000 {
		t.Fatalf("unexpected backtest section: %#v", cfg)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := LoadFromFile(writeConfig(t, "server: [")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestGetConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\nbacktest:\n  risk_pct: 0.5\n")
	chdir(t, t.TempDir())
	t.Setenv("QUANTEX_PORT", "9090")
	t.Setenv("QUANTEX_DSN", "postgres://x")
	t.Setenv("QUANTEX_RISK_PCT", "not-a-number")
	t.Setenv("QUANTEX_RATE_LIMIT", "0")
	t.Setenv("QUANTEX_CORS_ORIGINS", "a.example, b.example,")

	cfg := GetConfig(path)
	if cfg.Port != 9090 || cfg.DSN != "postgres://x" {
		t.Fatalf("env not applied: %#v", cfg)
	}
	if cfg.RiskPct != 0.5 {
		t.Fatalf("malformed env must keep file value, got %v", cfg.RiskPct)
	}
	if cfg.RateLimit != 0 {
		t.Fatalf("rate limit 0 disables throttling, got %v", cfg.RateLimit)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
}

func TestGetConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("QUANTEX_LOG_LEVEL=warn\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	chdir(t, dir)
	t.Setenv("QUANTEX_LOG_LEVEL", "")
	os.Unsetenv("QUANTEX_LOG_LEVEL")

	cfg := GetConfig("")
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected level from .env, got %q", cfg.LogLevel)
	}
	if cfg.Port != DefaultConfig.Port {
		t.Fatalf("unexpected port %d", cfg.Port)
	}
	os.Unsetenv("QUANTEX_LOG_LEVEL")
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}
