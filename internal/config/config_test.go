package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("DEVTYPE_DATA_DIR", t.TempDir())

	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Version != Version {
		t.Errorf("expected version %d, got %d", Version, cfg.Version)
	}
	if cfg.Engine.HalantKey != "q" {
		t.Errorf("expected halant key q, got %q", cfg.Engine.HalantKey)
	}
	if cfg.PlaceholderRune() != '◌' {
		t.Errorf("expected dotted circle placeholder, got %q", cfg.PlaceholderRune())
	}
	if !cfg.Engine.SettleOnCommit {
		t.Error("settle on commit should default to true")
	}
	if cfg.Scoring.Unit != "codepoint" {
		t.Errorf("expected codepoint scoring, got %s", cfg.Scoring.Unit)
	}
	if !strings.HasSuffix(cfg.Storage.Path, "annotations.db") {
		t.Errorf("unexpected storage path: %s", cfg.Storage.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEVTYPE_DATA_DIR", dir)

	path := ConfigPath()
	if path != filepath.Join(dir, "config.toml") {
		t.Errorf("expected config.toml under data dir, got %s", path)
	}
}

func TestDataDirFallsBackToPlatform(t *testing.T) {
	t.Setenv("DEVTYPE_DATA_DIR", "")

	dir := DataDir()
	if dir == "" {
		t.Error("DataDir returned empty string")
	}
	if !strings.Contains(strings.ToLower(dir), "devtype") {
		t.Errorf("data dir should contain devtype: %s", dir)
	}
}

func TestLoadNonexistent(t *testing.T) {
	t.Setenv("DEVTYPE_DATA_DIR", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load should return defaults for missing file: %v", err)
	}
	if cfg.Engine.HalantKey != "q" {
		t.Errorf("expected default halant key, got %q", cfg.Engine.HalantKey)
	}
}

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"config.toml", `
version = 1

[engine]
halant_key = "x"
settle_on_commit = false

[storage]
path = "/custom/path/labels.db"

[scoring]
unit = "grapheme"

[logging]
level = "debug"
format = "json"
`},
		{"config.json", `{
  "version": 1,
  "engine": {"halant_key": "x", "settle_on_commit": false},
  "storage": {"path": "/custom/path/labels.db"},
  "scoring": {"unit": "grapheme"},
  "logging": {"level": "debug", "format": "json"}
}`},
		{"config.yaml", `
version: 1
engine:
  halant_key: x
  settle_on_commit: false
storage:
  path: /custom/path/labels.db
scoring:
  unit: grapheme
logging:
  level: debug
  format: json
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.name)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if cfg.Engine.HalantKey != "x" {
				t.Errorf("expected halant key x, got %q", cfg.Engine.HalantKey)
			}
			if cfg.Engine.SettleOnCommit {
				t.Error("expected settle on commit to be disabled")
			}
			if cfg.Storage.Path != "/custom/path/labels.db" {
				t.Errorf("expected storage path /custom/path/labels.db, got %s", cfg.Storage.Path)
			}
			if cfg.Scoring.Unit != "grapheme" {
				t.Errorf("expected grapheme unit, got %s", cfg.Scoring.Unit)
			}
			if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
				t.Errorf("unexpected logging config: %+v", cfg.Logging)
			}
			// Unset fields keep their defaults
			if cfg.Engine.Placeholder != "◌" {
				t.Errorf("expected default placeholder, got %q", cfg.Engine.Placeholder)
			}
			if cfg.Storage.BusyTimeoutMs != 5000 {
				t.Errorf("expected default busy timeout, got %d", cfg.Storage.BusyTimeoutMs)
			}
		})
	}
}

func TestLoadAutoDetect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devtyperc")
	if err := os.WriteFile(path, []byte("[engine]\nhalant_key = \"v\"\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.HalantKey != "v" {
		t.Errorf("expected halant key v, got %q", cfg.Engine.HalantKey)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("this is not [valid toml"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DEVTYPE_HALANT_KEY", "z")
	t.Setenv("DEVTYPE_STORAGE_PATH", "/env/labels.db")
	t.Setenv("DEVTYPE_SCORING_UNIT", "grapheme")
	t.Setenv("DEVTYPE_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.HalantKey != "z" {
		t.Errorf("expected halant key z, got %q", cfg.Engine.HalantKey)
	}
	if cfg.Storage.Path != "/env/labels.db" {
		t.Errorf("expected env storage path, got %s", cfg.Storage.Path)
	}
	if cfg.Scoring.Unit != "grapheme" {
		t.Errorf("expected grapheme, got %s", cfg.Scoring.Unit)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected warn, got %s", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"version", func(c *Config) { c.Version = 9 }, "version"},
		{"empty halant key", func(c *Config) { c.Engine.HalantKey = "" }, "engine.halant_key"},
		{"long halant key", func(c *Config) { c.Engine.HalantKey = "qq" }, "engine.halant_key"},
		{"space halant key", func(c *Config) { c.Engine.HalantKey = " " }, "engine.halant_key"},
		{"placeholder", func(c *Config) { c.Engine.Placeholder = "ab" }, "engine.placeholder"},
		{"keymap format", func(c *Config) { c.Engine.KeymapPath = "keymap.ini" }, "engine.keymap_path"},
		{"watch without keymap", func(c *Config) { c.Engine.WatchKeymap = true }, "engine.watch_keymap"},
		{"storage path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"connections", func(c *Config) { c.Storage.MaxConnections = 0 }, "storage.max_connections"},
		{"busy timeout", func(c *Config) { c.Storage.BusyTimeoutMs = -1 }, "storage.busy_timeout_ms"},
		{"unit", func(c *Config) { c.Scoring.Unit = "word" }, "scoring.unit"},
		{"level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
		{"file path", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "logging.file_path"},
		{"max size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			found := false
			for _, v := range verrs {
				if v.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestMissingKeymapIsWarning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.KeymapPath = filepath.Join(t.TempDir(), "keymap.yaml")

	err := cfg.Validate()
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if verrs.HasErrors() {
		t.Errorf("missing keymap should only warn: %v", verrs.Errors())
	}
	if len(verrs.Warnings()) != 1 {
		t.Errorf("expected 1 warning, got %d", len(verrs.Warnings()))
	}
}

func TestEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.Path = filepath.Join(tmpDir, "subdir1", "labels.db")
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(tmpDir, "subdir2", "devtype.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "subdir1")); os.IsNotExist(err) {
		t.Error("subdir1 was not created")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "subdir2")); os.IsNotExist(err) {
		t.Error("subdir2 was not created")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"config.toml", "config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Engine.HalantKey = "x"
			cfg.Scoring.Unit = "grapheme"

			path := filepath.Join(dir, name)
			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Engine.HalantKey != "x" {
				t.Errorf("expected halant key x, got %q", loaded.Engine.HalantKey)
			}
			if loaded.Scoring.Unit != "grapheme" {
				t.Errorf("expected grapheme, got %s", loaded.Scoring.Unit)
			}
		})
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected config to be created")
	}
	if cfg.Engine.HalantKey != "q" {
		t.Errorf("expected default halant key, got %q", cfg.Engine.HalantKey)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if created {
		t.Error("second call should load the existing file")
	}
}

func TestLoaderRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[scoring]\nunit = \"word\"\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := NewLoader(path).Load()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoaderWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[engine]\nhalant_key = \"q\"\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader(path)
	defer loader.Close()
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changed := make(chan *Config, 1)
	loader.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[engine]\nhalant_key = \"x\"\n"), 0600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case c := <-changed:
		if c.Engine.HalantKey != "x" {
			t.Errorf("expected reloaded halant key x, got %q", c.Engine.HalantKey)
		}
		if loader.Config().Engine.HalantKey != "x" {
			t.Error("loader did not store reloaded config")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEVTYPE_DATA_DIR", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Chdir(dir)

	if got := FindConfigFile(); got != "" {
		t.Errorf("expected no config, got %s", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("version: 1\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if got := FindConfigFile(); filepath.Base(got) != "config.yaml" {
		t.Errorf("expected config.yaml, got %s", got)
	}
}
