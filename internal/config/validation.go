package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	// Validate version
	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	if engineErrs := validateEngine(&c.Engine); len(engineErrs) > 0 {
		errs = append(errs, engineErrs...)
	}

	if storageErrs := validateStorage(&c.Storage); len(storageErrs) > 0 {
		errs = append(errs, storageErrs...)
	}

	if scoringErrs := validateScoring(&c.Scoring); len(scoringErrs) > 0 {
		errs = append(errs, scoringErrs...)
	}

	if loggingErrs := validateLogging(&c.Logging); len(loggingErrs) > 0 {
		errs = append(errs, loggingErrs...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	// The halant key must be a single printable character
	if r, size := utf8.DecodeRuneInString(e.HalantKey); size == 0 || size != len(e.HalantKey) || !unicode.IsPrint(r) || unicode.IsSpace(r) {
		errs = append(errs, ValidationError{
			Field:   "engine.halant_key",
			Message: fmt.Sprintf("must be a single printable character, got %q", e.HalantKey),
		})
	}

	if utf8.RuneCountInString(e.Placeholder) != 1 {
		errs = append(errs, ValidationError{
			Field:   "engine.placeholder",
			Message: fmt.Sprintf("must be a single glyph, got %q", e.Placeholder),
		})
	}

	if e.KeymapPath != "" {
		switch strings.ToLower(filepath.Ext(e.KeymapPath)) {
		case ".yaml", ".yml", ".json", ".toml":
			// Valid formats
		default:
			errs = append(errs, ValidationError{
				Field:   "engine.keymap_path",
				Message: fmt.Sprintf("unsupported keymap format: %s (valid: .yaml, .json, .toml)", e.KeymapPath),
			})
		}
		if _, err := os.Stat(expandPath(e.KeymapPath)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "engine.keymap_path",
				Message: fmt.Sprintf("cannot access keymap: %v", err),
			})
		}
	} else if e.WatchKeymap {
		errs = append(errs, ValidationError{
			Field:   "engine.watch_keymap",
			Message: "watching requires engine.keymap_path",
		})
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	if s.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.path",
			Message: "database path is required",
		})
	}

	// Check parent directory exists or can be created
	dir := filepath.Dir(expandPath(s.Path))
	if dir != "" && dir != "." {
		if info, err := os.Stat(dir); err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, ValidationError{
					Field:   "storage.path",
					Message: fmt.Sprintf("cannot access directory: %v", err),
				})
			}
			// Directory doesn't exist yet - that's OK, it will be created
		} else if !info.IsDir() {
			errs = append(errs, ValidationError{
				Field:   "storage.path",
				Message: fmt.Sprintf("parent path is not a directory: %s", dir),
			})
		}
	}

	if s.MaxConnections < 1 {
		errs = append(errs, ValidationError{
			Field:   "storage.max_connections",
			Message: "max connections must be at least 1",
		})
	}
	if s.MaxConnections > 100 {
		errs = append(errs, ValidationError{
			Field:   "storage.max_connections",
			Message: "max connections cannot exceed 100",
		})
	}

	if s.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.busy_timeout_ms",
			Message: "busy timeout cannot be negative",
		})
	}

	return errs
}

func validateScoring(s *ScoringConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Unit {
	case "codepoint", "grapheme":
		// Valid units
	default:
		errs = append(errs, ValidationError{
			Field:   "scoring.unit",
			Message: fmt.Sprintf("invalid unit: %s (valid: codepoint, grapheme)", s.Unit),
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
		// Valid outputs
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

// Helper functions

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	// A keymap may be created after the config is written
	warningFields := []string{
		"engine.keymap_path",
	}
	for _, f := range warningFields {
		if strings.HasPrefix(e.Field, f) && strings.HasPrefix(e.Message, "cannot access") {
			return true
		}
	}
	return false
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")
