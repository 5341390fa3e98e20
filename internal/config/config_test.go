package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/inboxhub/realtime/internal/event"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  port: 9090
  host: "0.0.0.0"
  admin_token: "admin"
auth:
  allow_deferred: true
  tokens:
    - token: "tok-a"
      tenant_id: "acme"
      user_id: "alice"
realtime:
  queue_tick: 50ms
  batch_threshold: 25
  high_watermark: 2097152
  non_critical_types: ["typingIndicator"]
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.AdminToken != "admin" {
		t.Errorf("Server.AdminToken = %q", cfg.Server.AdminToken)
	}
	if !cfg.Auth.AllowDeferred {
		t.Error("Auth.AllowDeferred = false, want true")
	}
	if cfg.Realtime.QueueTick != 50*time.Millisecond {
		t.Errorf("QueueTick = %v, want 50ms", cfg.Realtime.QueueTick)
	}
	if cfg.Realtime.BatchThreshold != 25 {
		t.Errorf("BatchThreshold = %d, want 25", cfg.Realtime.BatchThreshold)
	}
	if got := cfg.Realtime.NonCritical(); len(got) != 1 || got[0] != event.TypingIndicator {
		t.Errorf("NonCritical() = %v, want [typingIndicator]", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Realtime.BatchTick != 300*time.Millisecond {
		t.Errorf("BatchTick = %v, want default 300ms", cfg.Realtime.BatchTick)
	}
	if cfg.Realtime.QueueCapacity != 1000 {
		t.Errorf("QueueCapacity = %d, want default 1000", cfg.Realtime.QueueCapacity)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Realtime.HighWatermark != 1<<20 {
		t.Errorf("HighWatermark = %d, want 1 MiB", cfg.Realtime.HighWatermark)
	}
	if len(cfg.Realtime.NonCritical()) != len(event.DefaultNonCritical) {
		t.Errorf("default non-critical types = %v", cfg.Realtime.NonCritical())
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), ":::not valid yaml")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"zero capacity", func(c *Config) { c.Realtime.QueueCapacity = 0 }, "queue_capacity"},
		{"zero tick", func(c *Config) { c.Realtime.BatchTick = 0 }, "ticks"},
		{"max below watermark", func(c *Config) { c.Realtime.MaxBuffered = 10 }, "max_buffered"},
		{"zero control rate", func(c *Config) { c.Realtime.ControlRate = 0 }, "control_rate"},
		{"unknown type", func(c *Config) { c.Realtime.NonCriticalTypes = []string{"nope"} }, "non_critical_types"},
		{"empty token", func(c *Config) { c.Auth.Tokens = []TokenConfig{{TenantID: "t"}} }, "empty token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestHubOptions(t *testing.T) {
	cfg := defaultConfig()
	opts := cfg.HubOptions()

	if opts.QueueTick != 150*time.Millisecond || opts.BatchTick != 300*time.Millisecond {
		t.Errorf("ticks = %v/%v", opts.QueueTick, opts.BatchTick)
	}
	if opts.BatchThreshold != 10 || opts.DrainPerTick != 100 || opts.QueueCapacity != 1000 {
		t.Errorf("unexpected sizes: %+v", opts)
	}
	if len(opts.NonCritical) != len(event.DefaultNonCritical) {
		t.Errorf("NonCritical = %v", opts.NonCritical)
	}
}

func TestPrincipal(t *testing.T) {
	a := AuthConfig{Tokens: []TokenConfig{{Token: "tok", TenantID: "t1", UserID: "u1"}}}

	p, ok := a.Principal("tok")
	if !ok || p.TenantID != "t1" || p.UserID != "u1" {
		t.Errorf("Principal(tok) = %+v, %v", p, ok)
	}
	if _, ok := a.Principal("other"); ok {
		t.Error("unknown token should not resolve")
	}
	if _, ok := a.Principal(""); ok {
		t.Error("empty token should not resolve")
	}
	if a.Open() {
		t.Error("auth with tokens should not be open")
	}
	if !(AuthConfig{}).Open() {
		t.Error("auth without tokens should be open")
	}
}

func TestWatchAppliesReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "realtime:\n  high_watermark: 1048576\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, zerolog.Nop(), func(c *Config) { got <- c })
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, dir, "realtime:\n  high_watermark: 4194304\n")

	select {
	case cfg := <-got:
		if cfg.Realtime.HighWatermark != 4<<20 {
			t.Errorf("reloaded HighWatermark = %d, want 4 MiB", cfg.Realtime.HighWatermark)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change not applied")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
