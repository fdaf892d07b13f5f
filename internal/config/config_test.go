package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specdeck/specdeck/internal/config"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()

	err := os.WriteFile(filepath.Join(dir, config.FileName), []byte(content), 0o600)
	if err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func Test_Load_Defaults_Without_File_Or_Env(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(t.TempDir(), "", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DataDir != ".specdeck" {
		t.Fatalf("data dir = %q, want .specdeck", cfg.DataDir)
	}

	if cfg.SnapshotEvery != 100 {
		t.Fatalf("snapshot every = %d, want 100", cfg.SnapshotEvery)
	}

	if cfg.SnapshotInterval != 5*time.Minute {
		t.Fatalf("snapshot interval = %s, want 5m", cfg.SnapshotInterval)
	}

	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q, want warn", cfg.LogLevel)
	}
}

// Contract: the config file is JSONC; comments and trailing commas parse.
func Test_Load_Accepts_JSONC(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `{
  // where the event logs live
  "data_dir": "/var/lib/specdeck",
  "snapshot_every": 50, // snapshot more often
}`)

	cfg, err := config.Load(dir, "", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DataDir != "/var/lib/specdeck" {
		t.Fatalf("data dir = %q", cfg.DataDir)
	}

	if cfg.SnapshotEvery != 50 {
		t.Fatalf("snapshot every = %d, want 50", cfg.SnapshotEvery)
	}

	// Unset values keep their defaults.
	if cfg.SnapshotInterval != 5*time.Minute {
		t.Fatalf("snapshot interval = %s, want default 5m", cfg.SnapshotInterval)
	}
}

// Contract: environment variables override file values.
func Test_Load_Env_Overrides_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `{"data_dir": "from-file", "log_level": "info"}`)

	cfg, err := config.Load(dir, "", map[string]string{
		"SPECDECK_DATA_DIR":          "from-env",
		"SPECDECK_SNAPSHOT_INTERVAL": "30s",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DataDir != "from-env" {
		t.Fatalf("data dir = %q, want from-env", cfg.DataDir)
	}

	if cfg.SnapshotInterval != 30*time.Second {
		t.Fatalf("snapshot interval = %s, want 30s", cfg.SnapshotInterval)
	}

	// File value untouched by env survives.
	if cfg.LogLevel != "info" {
		t.Fatalf("log level = %q, want info", cfg.LogLevel)
	}
}

func Test_Load_Explicit_Config_Path_Must_Exist(t *testing.T) {
	t.Parallel()

	_, err := config.Load(t.TempDir(), filepath.Join(t.TempDir(), "nope.json"), nil)
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func Test_Load_Rejects_Invalid_JSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `{"data_dir": `)

	_, err := config.Load(dir, "", nil)
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func Test_Load_Rejects_Unknown_Log_Level(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `{"log_level": "verbose"}`)

	_, err := config.Load(dir, "", nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func Test_Load_Rejects_Negative_Thresholds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `{"snapshot_every": -1}`)

	_, err := config.Load(dir, "", nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
}
