package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.HTTPPort != 8080 {
		t.Fatalf("expected default http port 8080, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Fatalf("expected postgres storage driver, got %q", cfg.Storage.Driver)
	}
	if cfg.Workflow.MaxBranchHops != 50 {
		t.Fatalf("expected 50 max branch hops, got %d", cfg.Workflow.MaxBranchHops)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Fatalf("expected 30s llm timeout, got %s", cfg.LLM.Timeout)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	content := []byte("storage:\n  driver: memory\nworkflow:\n  max_branch_hops: 10\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GUIDEPATH_SERVER_HTTP_PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("expected memory driver from file, got %q", cfg.Storage.Driver)
	}
	if cfg.Workflow.MaxBranchHops != 10 {
		t.Fatalf("expected 10 hops from file, got %d", cfg.Workflow.MaxBranchHops)
	}
	if cfg.Server.HTTPPort != 9000 {
		t.Fatalf("expected env override 9000, got %d", cfg.Server.HTTPPort)
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "gp", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=gp sslmode=disable"
	if got := db.DSN(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
