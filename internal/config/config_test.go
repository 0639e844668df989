package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("API_ID", "42")
	t.Setenv("API_HASH", "hash")
	t.Setenv("SESSION_STRING", "session")
}

func TestLoadFromEnvWithDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "missing")
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bot.Token != "123:abc" || cfg.Assistant.APIID != 42 {
		t.Errorf("env not bound: %+v", cfg)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
	if cfg.Timeouts.Join != 30*time.Second || cfg.Timeouts.Resolve != 5*time.Minute {
		t.Errorf("timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Resolver.Binary != "yt-dlp" || cfg.Resolver.Policy.MaxHeight != 480 || cfg.Resolver.Policy.Container != "mp4" {
		t.Errorf("resolver = %+v", cfg.Resolver)
	}
	if cfg.Quality.Audio != "high" || cfg.Quality.Video != "sd_480p" {
		t.Errorf("quality = %+v", cfg.Quality)
	}
}

func TestLoadPortFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "missing")
	setRequired(t)
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("port = %d", cfg.Port)
	}
}

func TestLoadReportsAllMissing(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "missing")
	for _, k := range []string{"BOT_TOKEN", "API_ID", "API_HASH", "SESSION_STRING"} {
		t.Setenv(k, "")
	}

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, k := range []string{"BOT_TOKEN", "API_ID", "API_HASH", "SESSION_STRING"} {
		if !strings.Contains(err.Error(), k) {
			t.Errorf("error %q does not mention %s", err, k)
		}
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_ENV", "test")
	setRequired(t)

	yaml := `
port: 7000
resolver:
  download: true
  max_duration: 90m
timeouts:
  resolve: 2m
session:
  idle_ttl: 0s
`
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7000 {
		t.Errorf("port = %d", cfg.Port)
	}
	if !cfg.Resolver.Policy.Download || cfg.Resolver.Policy.MaxDuration != 90*time.Minute {
		t.Errorf("policy = %+v", cfg.Resolver.Policy)
	}
	if cfg.Timeouts.Resolve != 2*time.Minute || cfg.Timeouts.Join != 30*time.Second {
		t.Errorf("timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Session.IdleTTL != 0 {
		t.Errorf("idle ttl = %v", cfg.Session.IdleTTL)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+): change the working directory
// and restore it when the test finishes.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore dir: %v", err)
		}
	})
}
