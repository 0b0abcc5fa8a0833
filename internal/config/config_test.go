package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REELNOTES_CONFIG_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.AppPort != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.AppPort)
	}
	if cfg.WriteMode != WriteModeLastWriteWins {
		t.Fatalf("expected last-write-wins default, got %q", cfg.WriteMode)
	}
	if cfg.ChangeFeed != ChangeFeedLocal {
		t.Fatalf("expected local change feed, got %q", cfg.ChangeFeed)
	}
	if cfg.SessionStore != SessionStorePostgres {
		t.Fatalf("expected postgres session store, got %q", cfg.SessionStore)
	}
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reelnotes.yaml")
	contents := `
port: 9090
write_mode: transactional
change_feed: postgres
session_store: memory
access_token_ttl: 5m
rate_limit:
  requests: 3
  window: 30s
object_store:
  bucket: reelnotes-assets
  region: eu-west-1
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REELNOTES_PORT", "9191")
	t.Setenv("REELNOTES_S3_REGION", "us-west-2")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom returned error: %v", err)
	}
	if cfg.AppPort != 9191 {
		t.Fatalf("expected env to override port, got %d", cfg.AppPort)
	}
	if cfg.WriteMode != WriteModeTransactional || cfg.ChangeFeed != ChangeFeedPostgres {
		t.Fatalf("unexpected modes: %q %q", cfg.WriteMode, cfg.ChangeFeed)
	}
	if cfg.SessionStore != SessionStoreMemory {
		t.Fatalf("expected memory session store, got %q", cfg.SessionStore)
	}
	if cfg.AccessTokenTTL != 5*time.Minute {
		t.Fatalf("expected 5m access ttl, got %s", cfg.AccessTokenTTL)
	}
	if cfg.RateLimit.Requests != 3 || cfg.RateLimit.Window != 30*time.Second {
		t.Fatalf("unexpected rate limit: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.Burst != 10 {
		t.Fatalf("expected default burst to survive the overlay, got %d", cfg.RateLimit.Burst)
	}
	if cfg.ObjectStore.Bucket != "reelnotes-assets" || cfg.ObjectStore.Region != "us-west-2" {
		t.Fatalf("unexpected object store: %+v", cfg.ObjectStore)
	}
}

func TestLoadIgnoresMalformedEnvironment(t *testing.T) {
	t.Setenv("REELNOTES_METADATA_WORKERS", "lots")
	t.Setenv("REELNOTES_YTDLP_TIMEOUT", "soon")

	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom returned error: %v", err)
	}
	if cfg.MetadataWorkers != 2 || cfg.YTDLPTimeout != 30*time.Second {
		t.Fatalf("expected defaults, got workers=%d timeout=%s", cfg.MetadataWorkers, cfg.YTDLPTimeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"REELNOTES_WRITE_MODE":    "optimistic",
		"REELNOTES_CHANGE_FEED":   "kafka",
		"REELNOTES_SESSION_STORE": "redis",
		"REELNOTES_PORT":          "70000",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := LoadFrom(""); err == nil {
				t.Fatalf("expected %s=%s to be rejected", key, value)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
