package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeOverlay(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bucketspy.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BUCKETSPY_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxRequests != 500 {
		t.Fatalf("MaxRequests = %d; want 500", cfg.MaxRequests)
	}
	if cfg.BadgeColor != "#1ba1e2" {
		t.Fatalf("BadgeColor = %q; want #1ba1e2", cfg.BadgeColor)
	}
	if cfg.BindAddr != "127.0.0.1:8190" {
		t.Fatalf("BindAddr = %q; want 127.0.0.1:8190", cfg.BindAddr)
	}
	if cfg.FocusPollInterval != time.Second {
		t.Fatalf("FocusPollInterval = %v; want 1s", cfg.FocusPollInterval)
	}
	if cfg.SeedSettings {
		t.Fatalf("SeedSettings = true without an overlay")
	}
	if got := cfg.GetCDPURL(); got != "http://127.0.0.1:9220" {
		t.Fatalf("GetCDPURL() = %q", got)
	}
}

func TestLoadOverlayThenEnv(t *testing.T) {
	path := writeOverlay(t, `
max_requests: 50
badge_color: "#ff0000"
focus_poll_ms: 250
settings:
  is_enabled: false
`)
	t.Setenv("BUCKETSPY_CONFIG", path)
	t.Setenv("BUCKETSPY_MAX_REQUESTS", "75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxRequests != 75 {
		t.Fatalf("MaxRequests = %d; want env value 75", cfg.MaxRequests)
	}
	if cfg.BadgeColor != "#ff0000" {
		t.Fatalf("BadgeColor = %q; want overlay value", cfg.BadgeColor)
	}
	if cfg.FocusPollInterval != 250*time.Millisecond {
		t.Fatalf("FocusPollInterval = %v; want 250ms", cfg.FocusPollInterval)
	}
	if !cfg.SeedSettings || cfg.SettingsDefaults.IsEnabled || !cfg.SettingsDefaults.ShowBadge {
		t.Fatalf("settings seed = %+v (seed=%v); want is_enabled=false show_badge=true", cfg.SettingsDefaults, cfg.SeedSettings)
	}
}

func TestLoadRejectsBadOverlay(t *testing.T) {
	t.Setenv("BUCKETSPY_CONFIG", writeOverlay(t, "max_requests: [1, 2"))
	if _, err := Load(); err == nil {
		t.Fatalf("Load() with malformed overlay = nil error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero capacity", func(c *Config) { c.MaxRequests = 0 }, "BUCKETSPY_MAX_REQUESTS"},
		{"bad colour", func(c *Config) { c.BadgeColor = "blue" }, "BUCKETSPY_BADGE_COLOR"},
		{"bad port", func(c *Config) { c.CDPPort = 70000 }, "CHROMIUM_CDP_PORT"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "BUCKETSPY_LOG_LEVEL"},
		{"no db", func(c *Config) { c.SettingsDB = "" }, "BUCKETSPY_SETTINGS_DB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				CDPAddress:  "127.0.0.1",
				CDPPort:     9220,
				BindAddr:    "127.0.0.1:8190",
				LogLevel:    "info",
				MaxRequests: 500,
				QueueSize:   1024,
				BadgeColor:  "#1ba1e2",
				SettingsDB:  "bucketspy.db",
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v; want mention of %s", err, tt.wantErr)
			}
		})
	}
}
