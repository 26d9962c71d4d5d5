package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestUpdateFromSkipsZeroValues(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":9090", HistoryLimit: 50})

	if cfg.Addr != ":9090" {
		t.Fatalf("expected addr override, got %q", cfg.Addr)
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("expected history limit override, got %d", cfg.HistoryLimit)
	}
	if cfg.DatabasePath != ":memory:" || cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("zero values must not override defaults: %+v", cfg)
	}
	if len(cfg.DefaultRooms) != 3 {
		t.Fatalf("expected default rooms kept, got %v", cfg.DefaultRooms)
	}
}

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Addr != ":8080" || cfg.HistoryLimit != 100 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config written: %v", err)
	}
}

func TestLoadReadsExistingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "addr: \":7070\"\nhistory_limit: 10\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.HistoryLimit != 10 {
		t.Fatalf("expected file values, got %+v", cfg)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", cfg.LogLevel)
	}
}
