// Package config resolves store configuration from defaults, an optional
// HuJSON config file, and SPECDECK_* environment variables, in that
// precedence order (later wins). CLI flag overrides are applied by the
// caller on top.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tailscale/hujson"
)

// FileName is the default config file looked up in the working directory.
const FileName = ".specdeck.json"

// Config holds all configuration options.
type Config struct {
	// DataDir is the store's root directory.
	DataDir string `json:"data_dir" env:"SPECDECK_DATA_DIR"`

	// SnapshotEvery snapshots after this many events since the last one.
	SnapshotEvery int `json:"snapshot_every" env:"SPECDECK_SNAPSHOT_EVERY"`

	// SnapshotInterval snapshots after this much time since the last one.
	SnapshotInterval time.Duration `json:"snapshot_interval" env:"SPECDECK_SNAPSHOT_INTERVAL"`

	// SubscriberBuffer is the per-subscriber event buffer capacity.
	SubscriberBuffer int `json:"subscriber_buffer" env:"SPECDECK_SUBSCRIBER_BUFFER"`

	// DisableIndex turns off the derived SQLite card index.
	DisableIndex bool `json:"disable_index" env:"SPECDECK_DISABLE_INDEX"`

	// LogLevel selects the zerolog level (debug, info, warn, error, off).
	LogLevel string `json:"log_level" env:"SPECDECK_LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:          ".specdeck",
		SnapshotEvery:    100,
		SnapshotInterval: 5 * time.Minute,
		LogLevel:         "warn",
	}
}

// Load resolves configuration. configPath, when non-empty, names an
// explicit config file that must exist; otherwise workDir/.specdeck.json is
// used when present. Variables in environ override file values.
func Load(workDir, configPath string, environ map[string]string) (Config, error) {
	cfg := Default()

	path := configPath
	required := configPath != ""

	if path == "" {
		path = filepath.Join(workDir, FileName)
	}

	fileCfg, loaded, err := loadFile(path)
	if err != nil {
		return Config{}, err
	}

	if required && !loaded {
		return Config{}, fmt.Errorf("config file %q not found", path)
	}

	if loaded {
		cfg = merge(cfg, fileCfg)
	}

	err = env.ParseWithOptions(&cfg, env.Options{Environment: environ})
	if err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}

	err = validate(cfg)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadFile reads and parses a HuJSON config file. A missing file is not an
// error; the caller decides whether it was required.
func loadFile(path string) (Config, bool, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("read config %q: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("config %q: invalid JSONC: %w", path, err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, false, fmt.Errorf("config %q: invalid JSON: %w", path, err)
	}

	return cfg, true, nil
}

// merge overlays non-zero values of over onto base.
func merge(base, over Config) Config {
	if over.DataDir != "" {
		base.DataDir = over.DataDir
	}

	if over.SnapshotEvery != 0 {
		base.SnapshotEvery = over.SnapshotEvery
	}

	if over.SnapshotInterval != 0 {
		base.SnapshotInterval = over.SnapshotInterval
	}

	if over.SubscriberBuffer != 0 {
		base.SubscriberBuffer = over.SubscriberBuffer
	}

	if over.DisableIndex {
		base.DisableIndex = true
	}

	if over.LogLevel != "" {
		base.LogLevel = over.LogLevel
	}

	return base
}

func validate(cfg Config) error {
	if cfg.DataDir == "" {
		return errors.New("config: data_dir is empty")
	}

	if cfg.SnapshotEvery < 0 {
		return errors.New("config: snapshot_every is negative")
	}

	if cfg.SnapshotInterval < 0 {
		return errors.New("config: snapshot_interval is negative")
	}

	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error", "off":
	default:
		return fmt.Errorf("config: unknown log_level %q", cfg.LogLevel)
	}

	return nil
}
