package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	SetConfigDir(dir)
	defer SetConfigDir("")

	t.Setenv("TEST_DISCORD_TOKEN", "tok-123")
	writeConfig(t, dir, `
discord:
  token: ${TEST_DISCORD_TOKEN}
providers:
  nanogpt:
    apiKey: key-abc
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Discord.Token != "tok-123" {
		t.Fatalf("env not expanded, got %q", cfg.Discord.Token)
	}
	if cfg.Timezone != defaultTimezone {
		t.Fatalf("default timezone not applied, got %q", cfg.Timezone)
	}
	if cfg.Providers.Default != "nanogpt" {
		t.Fatalf("default provider not applied, got %q", cfg.Providers.Default)
	}
	if cfg.Providers.NanoGPT.Model != defaultNanoGPTModel {
		t.Fatalf("default model not applied, got %q", cfg.Providers.NanoGPT.Model)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("default logging level not applied, got %q", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	SetConfigDir(dir)
	defer SetConfigDir("")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error without discord token")
	}

	cfg.Discord.Token = "tok"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error without provider api key")
	}

	cfg.Providers.NanoGPT.APIKey = "key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWatcherConfigInterval(t *testing.T) {
	t.Parallel()

	var nilCfg *WatcherConfig
	if got := nilCfg.IntervalOr(10 * time.Minute); got != 10*time.Minute {
		t.Fatalf("nil config: got %v", got)
	}
	if !nilCfg.On() {
		t.Fatal("nil config should be enabled")
	}

	w := &WatcherConfig{Interval: "5m"}
	if got := w.IntervalOr(10 * time.Minute); got != 5*time.Minute {
		t.Fatalf("parsed interval: got %v", got)
	}

	w = &WatcherConfig{Interval: "not-a-duration"}
	if got := w.IntervalOr(10 * time.Minute); got != 10*time.Minute {
		t.Fatalf("invalid interval should fall back, got %v", got)
	}

	off := false
	w = &WatcherConfig{Enabled: &off}
	if w.On() {
		t.Fatal("explicitly disabled watcher reported enabled")
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	t.Parallel()

	cfg := &Config{Timezone: "Not/AZone"}
	if loc := cfg.Location(); loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", loc)
	}
}
