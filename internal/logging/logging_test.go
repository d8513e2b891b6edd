package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"devtype/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"INFO", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := LevelString(test.level)
			if result != test.expected {
				t.Errorf("expected %q, got %q", test.expected, result)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("expected default format Text, got %v", cfg.Format)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.MaxSize <= 0 {
		t.Errorf("expected positive MaxSize, got %d", cfg.MaxSize)
	}
	if cfg.MaxAge <= 0 {
		t.Errorf("expected positive MaxAge, got %d", cfg.MaxAge)
	}
	if cfg.MaxBackups <= 0 {
		t.Errorf("expected positive MaxBackups, got %d", cfg.MaxBackups)
	}
	if cfg.Component != "devtype" {
		t.Errorf("expected component devtype, got %s", cfg.Component)
	}
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{
		Level:      "debug",
		Format:     "json",
		Output:     "file",
		FilePath:   "/tmp/devtype-test.log",
		MaxSizeMB:  5,
		MaxBackups: 2,
		MaxAgeDays: 7,
		Compress:   false,
	})
	if err != nil {
		t.Fatalf("FromSettings failed: %v", err)
	}

	if cfg.Level != LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("expected JSON format, got %v", cfg.Format)
	}
	if cfg.Output != "file" || cfg.FilePath != "/tmp/devtype-test.log" {
		t.Errorf("unexpected output %s %s", cfg.Output, cfg.FilePath)
	}
	if cfg.MaxSize != 5 || cfg.MaxBackups != 2 || cfg.MaxAge != 7 {
		t.Errorf("unexpected rotation settings: %+v", cfg)
	}
	if !cfg.AddSource {
		t.Error("debug level should add source")
	}

	if _, err := FromSettings(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := FromSettings(config.LoggingConfig{Level: "info", Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestLoggerNew(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "stderr"

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.Logger == nil {
		t.Error("logger.Logger is nil")
	}
}

func TestLoggerWithSessionID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "stderr"

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Close()

	childLogger := logger.WithSessionID("test-session-123")
	if childLogger == nil {
		t.Error("WithSessionID returned nil")
	}
}

func TestLoggerWithComponent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "stderr"

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Close()

	childLogger := logger.WithComponent("test-component")
	if childLogger == nil {
		t.Error("WithComponent returned nil")
	}
}

func TestSessionIDContext(t *testing.T) {
	ctx := context.Background()
	requestID := "test-session-456"

	// Add request ID to context
	ctx = ContextWithSessionID(ctx, requestID)

	// Extract request ID from context
	extracted := SessionIDFromContext(ctx)
	if extracted != requestID {
		t.Errorf("expected %q, got %q", requestID, extracted)
	}
}

func TestSessionIDFromNilContext(t *testing.T) {
	extracted := SessionIDFromContext(nil)
	if extracted != "" {
		t.Errorf("expected empty string, got %q", extracted)
	}
}

func TestSessionIDFromEmptyContext(t *testing.T) {
	ctx := context.Background()
	extracted := SessionIDFromContext(ctx)
	if extracted != "" {
		t.Errorf("expected empty string, got %q", extracted)
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"password", true},
		{"PASSWORD", true},
		{"user_password", true},
		{"secret", true},
		{"api_key", true},
		{"apikey", true},
		{"token", true},
		{"auth_token", true},
		{"access_token", true},
		{"bearer", true},
		{"credential", true},
		{"private_key", true},
		{"cookie", true},
		{"key", false},
		{"session_id", false},
		{"username", false},
		{"email", false},
		{"name", false},
		{"id", false},
		{"timestamp", false},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			result := shouldRedact(test.key)
			if result != test.expected {
				t.Errorf("shouldRedact(%q) = %v, expected %v", test.key, result, test.expected)
			}
		})
	}
}

func TestNewSessionID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "stderr"
	cfg.Component = "test"

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Close()

	id1 := logger.NewSessionID()
	id2 := logger.NewSessionID()

	if id1 == "" {
		t.Error("NewSessionID returned empty string")
	}
	if id1 == id2 {
		t.Error("NewSessionID returned duplicate IDs")
	}
	if !strings.HasPrefix(id1, "test-") {
		t.Errorf("NewSessionID should start with component name, got %q", id1)
	}
}

func TestFileOutputJSON(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "devtype.log")

	cfg := &Config{
		Level:      LevelInfo,
		Format:     FormatJSON,
		Output:     "file",
		FilePath:   logPath,
		MaxSize:    1,
		Component:  "test",
		MaxBackups: 1,
	}

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create JSON logger: %v", err)
	}

	logger.Info("key dispatched", "key", "k", "password", "hunter2")
	logger.Debug("filtered out")
	if err := logger.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %s", len(lines), data)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["component"] != "test" {
		t.Errorf("expected component test, got %v", entry["component"])
	}
	if entry["key"] != "k" {
		t.Errorf("key attribute should not be redacted, got %v", entry["key"])
	}
	if entry["password"] != "[REDACTED]" {
		t.Errorf("password should be redacted, got %v", entry["password"])
	}
}

func TestFileRotator(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	cfg := &Config{
		FilePath:   logPath,
		MaxSize:    1, // 1 MB
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   false, // Disable for faster tests
	}

	rotator, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	testData := []byte("test log line\n")
	n, err := rotator.Write(testData)
	if err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if n != len(testData) {
		t.Errorf("expected to write %d bytes, wrote %d", len(testData), n)
	}

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("log file was not created")
	}

	if err := rotator.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
}

func TestFileRotatorRotation(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	cfg := &Config{
		FilePath:   logPath,
		MaxSize:    1,
		MaxAge:     7,
		MaxBackups: 2,
		Compress:   false,
	}

	rotator, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}

	for i := 0; i < 4; i++ {
		if _, err := rotator.Write([]byte("line before rotation\n")); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if err := rotator.Rotate(); err != nil {
			t.Fatalf("rotate failed: %v", err)
		}
	}
	if err := rotator.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	files, err := rotator.GetLogFiles()
	if err != nil {
		t.Fatalf("failed to get log files: %v", err)
	}

	// Current file plus MaxBackups rotated files
	if len(files) != 3 {
		t.Errorf("expected 3 log files, got %d: %v", len(files), files)
	}
}

func TestFileRotatorCompress(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rotator, err := NewFileRotator(&Config{
		FilePath:   logPath,
		MaxSize:    1,
		MaxBackups: 5,
		Compress:   true,
	})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	rotator.Write([]byte("compress me\n"))
	if err := rotator.Rotate(); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	rotator.Close()

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(logPath), "test-*.log.gz"))
	if len(matches) != 1 {
		t.Errorf("expected 1 compressed file, got %v", matches)
	}
}

func TestAuditLogger(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.log")

	auditLogger, err := NewAuditLogger(&AuditLoggerConfig{
		FilePath:   auditPath,
		MaxSize:    10,
		MaxAge:     7,
		MaxBackups: 3,
		Component:  "test",
		Annotator:  "tester",
	})
	if err != nil {
		t.Fatalf("failed to create audit logger: %v", err)
	}

	ctx := context.Background()

	if err := auditLogger.LogSessionStart(ctx, "session-123", map[string]any{"command": "annotate"}); err != nil {
		t.Errorf("LogSessionStart failed: %v", err)
	}
	if err := auditLogger.LogImport(ctx, "predictions.json", 12); err != nil {
		t.Errorf("LogImport failed: %v", err)
	}
	if err := auditLogger.LogGroundTruth(ctx, "ms1/3/7", "", "नमस्ते"); err != nil {
		t.Errorf("LogGroundTruth failed: %v", err)
	}
	if err := auditLogger.LogVerification(ctx, "ms1", false, map[string]any{"mismatched": 1}); err != nil {
		t.Errorf("LogVerification failed: %v", err)
	}
	if err := auditLogger.LogError(ctx, "export", errors.New("disk full"), nil); err != nil {
		t.Errorf("LogError failed: %v", err)
	}
	if err := auditLogger.LogSessionEnd(ctx, nil); err != nil {
		t.Errorf("LogSessionEnd failed: %v", err)
	}
	auditLogger.Close()

	data, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("failed to read audit log: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 events, got %d", len(lines))
	}

	events := make([]AuditEvent, len(lines))
	for i, line := range lines {
		if err := json.Unmarshal([]byte(line), &events[i]); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i+1, err)
		}
	}

	if events[2].EventType != AuditEventGroundTruth || events[2].Resource != "ms1/3/7" {
		t.Errorf("unexpected ground truth event: %+v", events[2])
	}
	if events[2].SessionID != "session-123" {
		t.Errorf("expected session-123, got %q", events[2].SessionID)
	}
	if events[2].Annotator != "tester" {
		t.Errorf("expected annotator tester, got %q", events[2].Annotator)
	}
	if !strings.HasSuffix(events[2].SourceFile, "logging_test.go") {
		t.Errorf("source should point at the caller, got %s", events[2].SourceFile)
	}
	if events[3].Result != "failure" {
		t.Errorf("expected failed verification, got %s", events[3].Result)
	}
	if events[4].Error != "disk full" {
		t.Errorf("expected error text, got %q", events[4].Error)
	}
}

func TestCrashHandler(t *testing.T) {
	var out bytes.Buffer
	restored := false

	handler := NewCrashHandler(&CrashHandlerConfig{
		CrashDir:  t.TempDir(),
		Version:   "1.0.0",
		Component: "test",
		Output:    &out,
		OnCrash:   func(CrashReport) { restored = true },
	})

	panicked := handler.RecoverWithContext(map[string]any{"command": "pad"}, func() {
		panic("test panic value")
	})
	if !panicked {
		t.Error("Recover should report the panic")
	}
	if !restored {
		t.Error("OnCrash was not called")
	}
	if !strings.Contains(out.String(), "test panic value") {
		t.Errorf("crash summary missing panic value: %s", out.String())
	}

	reports, err := handler.GetCrashReports()
	if err != nil {
		t.Fatalf("failed to get crash reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	report := reports[0]
	if report.PanicValue != "test panic value" {
		t.Errorf("expected panic value 'test panic value', got %q", report.PanicValue)
	}
	if report.Version != "1.0.0" || report.Component != "test" {
		t.Errorf("unexpected report metadata: %+v", report)
	}
	if report.Context["command"] != "pad" {
		t.Errorf("expected context to be kept, got %v", report.Context)
	}

	if err := handler.ClearCrashReports(); err != nil {
		t.Errorf("ClearCrashReports failed: %v", err)
	}
	reports, _ = handler.GetCrashReports()
	if len(reports) != 0 {
		t.Error("crash reports were not cleared")
	}
}

func TestCrashHandlerNoPanic(t *testing.T) {
	handler := NewCrashHandler(&CrashHandlerConfig{CrashDir: t.TempDir(), Output: &bytes.Buffer{}})

	ran := false
	if handler.Recover(func() { ran = true }) {
		t.Error("Recover reported a panic that did not happen")
	}
	if !ran {
		t.Error("function did not run")
	}
}
