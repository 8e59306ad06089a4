package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Defaults(dir)
	if cfg != want {
		t.Fatalf("Load() = %+v, want defaults %+v", cfg, want)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ccmux.yaml")

	cfg := Defaults(dir)
	cfg.ScrollbackLines = 5000
	cfg.Sideband.MaxPanesPerSession = 10

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ScrollbackLines != 5000 {
		t.Fatalf("ScrollbackLines = %d, want 5000", got.ScrollbackLines)
	}
	if got.Sideband.MaxPanesPerSession != 10 {
		t.Fatalf("MaxPanesPerSession = %d, want 10", got.Sideband.MaxPanesPerSession)
	}
}

func TestApplyDefaultsFillsPartialConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{StateDir: dir}
	applyDefaults(&cfg, dir)

	if cfg.SocketPath != filepath.Join(dir, "ccmux.sock") {
		t.Fatalf("SocketPath = %q", cfg.SocketPath)
	}
	if cfg.Checkpoint.Retention != 3 {
		t.Fatalf("Checkpoint.Retention = %d, want 3", cfg.Checkpoint.Retention)
	}
	if cfg.Arbitration.TTLMs != 3000 {
		t.Fatalf("Arbitration.TTLMs = %d, want 3000", cfg.Arbitration.TTLMs)
	}
}
