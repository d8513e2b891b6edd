// Package config handles configuration loading, validation, and management for devtype.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete devtype configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Engine configuration for the transliteration engine.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Storage configuration for the annotation database.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Scoring configuration for prediction/ground-truth comparison.
	Scoring ScoringConfig `toml:"scoring" json:"scoring" yaml:"scoring"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// EngineConfig holds transliteration engine configuration.
type EngineConfig struct {
	// HalantKey is the Latin key that inserts an explicit HALANT.
	HalantKey string `toml:"halant_key" json:"halant_key" yaml:"halant_key"`

	// Placeholder is the glyph that hosts a vowel sign typed without a consonant.
	Placeholder string `toml:"placeholder" json:"placeholder" yaml:"placeholder"`

	// KeymapPath is an optional overlay file (YAML, JSON or TOML) merged
	// over the built-in tables.
	KeymapPath string `toml:"keymap_path" json:"keymap_path" yaml:"keymap_path"`

	// WatchKeymap reloads the keymap overlay when the file changes.
	WatchKeymap bool `toml:"watch_keymap" json:"watch_keymap" yaml:"watch_keymap"`

	// SettleOnCommit strips stray typing markers when a field is committed.
	SettleOnCommit bool `toml:"settle_on_commit" json:"settle_on_commit" yaml:"settle_on_commit"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the path to the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// ScoringConfig holds scoring configuration.
type ScoringConfig struct {
	// Unit is the edit-distance unit: "codepoint" or "grapheme".
	Unit string `toml:"unit" json:"unit" yaml:"unit"`

	// Settle strips typing markers from both labels before comparing.
	Settle bool `toml:"settle" json:"settle" yaml:"settle"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log destination: "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output is "file" or "both".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of rotated files.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()
	return &Config{
		Version: Version,
		Engine: EngineConfig{
			HalantKey:      "q",
			Placeholder:    "\u25CC",
			WatchKeymap:    false,
			SettleOnCommit: true,
		},
		Storage: StorageConfig{
			Path:           filepath.Join(dir, "annotations.db"),
			MaxConnections: 1,
			BusyTimeoutMs:  5000,
		},
		Scoring: ScoringConfig{
			Unit:   "codepoint",
			Settle: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "devtype.log"),
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	cfg.ApplyEnvOverrides()

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// PlaceholderRune returns the placeholder glyph as a rune.
func (c *Config) PlaceholderRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Engine.Placeholder)
	if r == utf8.RuneError {
		return 0
	}
	return r
}

// EnsureDirectories creates all necessary directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DataDir returns the base devtype directory.
// Uses platform-specific paths or the DEVTYPE_DATA_DIR environment override.
func DataDir() string {
	if envDir := os.Getenv("DEVTYPE_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with DEVTYPE_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Engine overrides
	if v := os.Getenv("DEVTYPE_HALANT_KEY"); v != "" {
		c.Engine.HalantKey = v
	}
	if v := os.Getenv("DEVTYPE_KEYMAP"); v != "" {
		c.Engine.KeymapPath = v
	}

	// Storage overrides
	if v := os.Getenv("DEVTYPE_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}

	// Scoring overrides
	if v := os.Getenv("DEVTYPE_SCORING_UNIT"); v != "" {
		c.Scoring.Unit = v
	}

	// Logging overrides
	if v := os.Getenv("DEVTYPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DEVTYPE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("DEVTYPE_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Version: c.Version,
		Engine:  c.Engine,
		Storage: c.Storage,
		Scoring: c.Scoring,
		Logging: c.Logging,
	}
}

// SaveConfig writes cfg to path in the format implied by its extension
// (TOML by default).
func SaveConfig(cfg *Config, path string) error {
	c := cfg.Clone()

	var data []byte
	var err error
	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
