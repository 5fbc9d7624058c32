package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("default port = %d", cfg.Port)
	}
	if cfg.Worker.Concurrency != 2 {
		t.Errorf("default concurrency = %d", cfg.Worker.Concurrency)
	}
}

func TestLoadFileLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: 9090
redis_url: redis://localhost:6379/0
object_store:
  root: /var/lib/codex/objects
ingest:
  batch_size: 50
  time_budget_sec: 30
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Port)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("redis_url = %q", cfg.RedisURL)
	}
	if cfg.ObjectStore.Root != "/var/lib/codex/objects" {
		t.Errorf("object store root = %q", cfg.ObjectStore.Root)
	}
	if cfg.Ingest.BatchSize != 50 || cfg.Ingest.TimeBudgetSec != 30 {
		t.Errorf("ingest = %+v", cfg.Ingest)
	}

	// Fields absent from the file keep their defaults.
	if cfg.DatabaseURL == "" {
		t.Error("database_url default lost")
	}
	if cfg.Worker.DequeueTimeoutSec != 5 {
		t.Errorf("dequeue timeout = %d", cfg.Worker.DequeueTimeoutSec)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: [not an int"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
