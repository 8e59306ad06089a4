// Package config loads and live-reloads the daemon's YAML
// configuration file. Saves are atomic (temp file + fsync + rename),
// defaulting is manual rather than framework-driven, and file-change
// notification uses fsnotify.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// WAL holds the write-ahead log's durability/throughput knobs.
type WAL struct {
	GroupCommitWindowMs int  `yaml:"group_commit_window_ms"`
	PersistPaneOutput   bool `yaml:"persist_pane_output"`
}

// Checkpoint holds checkpoint-store retention/cadence knobs.
type Checkpoint struct {
	Retention       int `yaml:"retention"`
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Arbitration holds the human/agent arbitration TTL.
type Arbitration struct {
	TTLMs int `yaml:"ttl_ms"`
}

// Sideband holds sideband executor limits.
type Sideband struct {
	MaxPanesPerSession int `yaml:"max_panes_per_session"`
}

// Config is the daemon's top-level configuration.
type Config struct {
	StateDir        string      `yaml:"state_dir"`
	SocketPath      string      `yaml:"socket_path"`
	ScrollbackLines int         `yaml:"scrollback_lines"`
	WAL             WAL         `yaml:"wal"`
	Checkpoint      Checkpoint  `yaml:"checkpoint"`
	Arbitration     Arbitration `yaml:"arbitration"`
	Sideband        Sideband    `yaml:"sideband"`
	// StatusAddr, when non-empty, enables internal/status's read-only
	// HTTP+WS monitoring surface on this address (default: disabled).
	StatusAddr string `yaml:"status_addr"`
}

// Defaults returns a Config with every default filled in, rooted at
// stateDir.
func Defaults(stateDir string) Config {
	return Config{
		StateDir:        stateDir,
		SocketPath:      filepath.Join(stateDir, "ccmux.sock"),
		ScrollbackLines: 1000,
		WAL:             WAL{GroupCommitWindowMs: 4, PersistPaneOutput: false},
		Checkpoint:      Checkpoint{Retention: 3, IntervalSeconds: 120},
		Arbitration:     Arbitration{TTLMs: 3000},
		Sideband:        Sideband{MaxPanesPerSession: 50},
		StatusAddr:      "",
	}
}

// applyDefaults fills zero-valued fields of cfg from Defaults(stateDir)
// — load, then backfill whatever the file left out.
func applyDefaults(cfg *Config, stateDir string) {
	d := Defaults(stateDir)
	if cfg.StateDir == "" {
		cfg.StateDir = d.StateDir
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(cfg.StateDir, "ccmux.sock")
	}
	if cfg.ScrollbackLines <= 0 {
		cfg.ScrollbackLines = d.ScrollbackLines
	}
	if cfg.WAL.GroupCommitWindowMs <= 0 {
		cfg.WAL.GroupCommitWindowMs = d.WAL.GroupCommitWindowMs
	}
	if cfg.Checkpoint.Retention <= 0 {
		cfg.Checkpoint.Retention = d.Checkpoint.Retention
	}
	if cfg.Checkpoint.IntervalSeconds <= 0 {
		cfg.Checkpoint.IntervalSeconds = d.Checkpoint.IntervalSeconds
	}
	if cfg.Arbitration.TTLMs <= 0 {
		cfg.Arbitration.TTLMs = d.Arbitration.TTLMs
	}
	if cfg.Sideband.MaxPanesPerSession <= 0 {
		cfg.Sideband.MaxPanesPerSession = d.Sideband.MaxPanesPerSession
	}
}

// Load reads and parses the YAML file at path, defaulting missing fields
// against stateDir. A missing file is not an error: Defaults(stateDir)
// is returned as-is, so a fresh install runs without any config file.
func Load(path, stateDir string) (Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Defaults(stateDir), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: parse %s: %w", path, err)
	}
	applyDefaults(&cfg, stateDir)
	return cfg, nil
}

// Save atomically writes cfg to path: encode, write to a sibling temp
// file, fsync, rename over the destination.
func Save(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("save config: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ccmux-config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("save config: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("save config: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("save config: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// Watcher live-reloads a Config from disk whenever the file changes.
type Watcher struct {
	w        *fsnotify.Watcher
	path     string
	stateDir string
	onChange func(Config)
}

// WatchFile starts watching path's parent directory (fsnotify only
// reliably delivers rename-based atomic-save events at the directory
// level, not the file level) and invokes onChange with the freshly
// reloaded Config whenever path itself changes. Call Close to stop.
func WatchFile(path, stateDir string, onChange func(Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watch: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watch: %w", err)
	}
	watcher := &Watcher{w: w, path: path, stateDir: stateDir, onChange: onChange}
	go watcher.loop()
	return watcher, nil
}

func (cw *Watcher) loop() {
	const debounce = 50 * time.Millisecond
	var pending *time.Timer
	for {
		select {
		case ev, ok := <-cw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(cw.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounce, func() {
				cfg, err := Load(cw.path, cw.stateDir)
				if err == nil {
					cw.onChange(cfg)
				}
			})
		case _, ok := <-cw.w.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher.
func (cw *Watcher) Close() error {
	return cw.w.Close()
}
