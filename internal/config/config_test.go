// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

telegram:
  enabled: true
  token: "123456:test-token"
  update_timeout: 30

admin_api:
  addr: "127.0.0.1:8090"
  token: "operator-secret"

guard:
  dedup_ttl: "2m"
  rate_window: "10s"
  max_fingerprints: 50000
  rate_ceiling: 20

dispatch:
  welcome_cooldown: "12h"
  flow_timeout: "1h"

modes:
  release_mode: "using_bot"

session:
  retry_max_attempts: 3
  retry_initial_interval: "100ms"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}

	if !cfg.Telegram.Enabled {
		t.Error("Telegram.Enabled = false, want true")
	}
	if cfg.Telegram.Token != "123456:test-token" {
		t.Errorf("Telegram.Token = %q, want %q", cfg.Telegram.Token, "123456:test-token")
	}
	if cfg.Telegram.UpdateTimeout != 30 {
		t.Errorf("Telegram.UpdateTimeout = %d, want 30", cfg.Telegram.UpdateTimeout)
	}

	if cfg.AdminAPI.Addr != "127.0.0.1:8090" {
		t.Errorf("AdminAPI.Addr = %q, want %q", cfg.AdminAPI.Addr, "127.0.0.1:8090")
	}
	if cfg.AdminAPI.Token != "operator-secret" {
		t.Errorf("AdminAPI.Token = %q, want %q", cfg.AdminAPI.Token, "operator-secret")
	}

	// Verify guard config with duration parsing
	if cfg.Guard.DedupTTL != 2*time.Minute {
		t.Errorf("Guard.DedupTTL = %v, want %v", cfg.Guard.DedupTTL, 2*time.Minute)
	}
	if cfg.Guard.RateWindow != 10*time.Second {
		t.Errorf("Guard.RateWindow = %v, want %v", cfg.Guard.RateWindow, 10*time.Second)
	}
	if cfg.Guard.MaxFingerprints != 50000 {
		t.Errorf("Guard.MaxFingerprints = %d, want 50000", cfg.Guard.MaxFingerprints)
	}
	if cfg.Guard.RateCeiling != 20 {
		t.Errorf("Guard.RateCeiling = %d, want 20", cfg.Guard.RateCeiling)
	}

	if cfg.Dispatch.WelcomeCooldown != 12*time.Hour {
		t.Errorf("Dispatch.WelcomeCooldown = %v, want %v", cfg.Dispatch.WelcomeCooldown, 12*time.Hour)
	}
	if cfg.Dispatch.FlowTimeout != time.Hour {
		t.Errorf("Dispatch.FlowTimeout = %v, want %v", cfg.Dispatch.FlowTimeout, time.Hour)
	}

	if cfg.Modes.ReleaseMode != "using_bot" {
		t.Errorf("Modes.ReleaseMode = %q, want %q", cfg.Modes.ReleaseMode, "using_bot")
	}

	if cfg.Session.RetryMaxAttempts != 3 {
		t.Errorf("Session.RetryMaxAttempts = %d, want 3", cfg.Session.RetryMaxAttempts)
	}
	if cfg.Session.RetryInitialInterval != 100*time.Millisecond {
		t.Errorf("Session.RetryInitialInterval = %v, want %v", cfg.Session.RetryInitialInterval, 100*time.Millisecond)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("PASARBOT_TEST_TOKEN", "env-token-value")
	t.Setenv("PASARBOT_TEST_DB", "/tmp/env.db")

	configPath := writeConfig(t, `
database:
  path: "${PASARBOT_TEST_DB}"

telegram:
  enabled: true
  token: "${PASARBOT_TEST_TOKEN}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/env.db")
	}
	if cfg.Telegram.Token != "env-token-value" {
		t.Errorf("Telegram.Token = %q, want %q", cfg.Telegram.Token, "env-token-value")
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

telegram:
  enabled: true
  token: "${PASARBOT_DEFINITELY_UNSET_VAR}"
`)

	// An unset variable leaves the token empty, which validation rejects
	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "telegram.token") {
		t.Errorf("Load() error = %v, want mention of telegram.token", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() error = nil, want error")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "database: [unclosed")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

guard:
  dedup_ttl: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want duration parse error")
	}
	if !strings.Contains(err.Error(), "dedup_ttl") {
		t.Errorf("Load() error = %v, want mention of dedup_ttl", err)
	}
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "info"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("Load() error = %v, want mention of database.path", err)
	}
}

func TestLoad_AdminAPIRequiresToken(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

admin_api:
  addr: "127.0.0.1:8090"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "admin_api.token") {
		t.Errorf("Load() error = %v, want mention of admin_api.token", err)
	}
}

func TestLoad_InvalidReleaseMode(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

modes:
  release_mode: "hibernating"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "release_mode") {
		t.Errorf("Load() error = %v, want mention of release_mode", err)
	}
}

func TestValidate_TelegramDisabledAllowsEmptyToken(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Path: "./test.db"},
		Telegram: TelegramConfig{Enabled: false},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}
