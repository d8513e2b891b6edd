package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types.
const (
	AuditEventSessionStart AuditEventType = "session_start"
	AuditEventSessionEnd   AuditEventType = "session_end"
	AuditEventImport       AuditEventType = "import"
	AuditEventGroundTruth  AuditEventType = "ground_truth"
	AuditEventScore        AuditEventType = "score"
	AuditEventExport       AuditEventType = "export"
	AuditEventVerification AuditEventType = "verification"
	AuditEventKeymapReload AuditEventType = "keymap_reload"
	AuditEventConfigChange AuditEventType = "config_change"
	AuditEventError        AuditEventType = "error"
)

// AuditEvent records a change to the annotation corpus.
type AuditEvent struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  AuditEventType `json:"event_type"`
	Component  string         `json:"component"`
	SessionID  string         `json:"session_id,omitempty"`
	Annotator  string         `json:"annotator,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource,omitempty"`
	Result     string         `json:"result"` // "success" or "failure"
	Details    map[string]any `json:"details,omitempty"`
	SourceFile string         `json:"source_file,omitempty"`
	SourceLine int            `json:"source_line,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	// FilePath is the path to the audit log file.
	FilePath string

	// MaxSize is the maximum size in MB before rotation.
	MaxSize int64

	// MaxAge is the maximum age in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// Compress determines if rotated logs should be compressed.
	Compress bool

	// Component is the component name for audit events.
	Component string

	// Annotator identifies the person editing labels.
	Annotator string
}

// DefaultAuditConfig returns default audit logger configuration.
func DefaultAuditConfig() *AuditLoggerConfig {
	annotator := os.Getenv("USER")
	if annotator == "" {
		annotator = os.Getenv("USERNAME")
	}
	return &AuditLoggerConfig{
		FilePath:   filepath.Join(filepath.Dir(defaultLogPath()), "audit.log"),
		MaxSize:    50, // 50 MB
		MaxAge:     365,
		MaxBackups: 10,
		Compress:   true,
		Component:  "devtype",
		Annotator:  annotator,
	}
}

// AuditLogger appends annotation events to a JSON-lines file.
type AuditLogger struct {
	config    *AuditLoggerConfig
	rotator   *FileRotator
	mu        sync.Mutex
	sessionID string
}

// NewAuditLogger creates a new AuditLogger.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}

	rotator, err := NewFileRotator(&Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
		Format:     FormatJSON,
		Level:      LevelInfo,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}

	return &AuditLogger{
		config:  cfg,
		rotator: rotator,
	}, nil
}

// SetSessionID sets the current session ID for audit events.
func (a *AuditLogger) SetSessionID(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionID = sessionID
}

// Log writes an audit event.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return a.log(ctx, event, 2)
}

func (a *AuditLogger) log(ctx context.Context, event AuditEvent, skip int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Component == "" {
		event.Component = a.config.Component
	}
	if event.SessionID == "" {
		event.SessionID = SessionIDFromContext(ctx)
	}
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}
	if event.Annotator == "" {
		event.Annotator = a.config.Annotator
	}
	if event.Result == "" {
		event.Result = "success"
	}

	if event.SourceFile == "" {
		if _, file, line, ok := runtime.Caller(skip); ok {
			event.SourceFile = file
			event.SourceLine = line
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	data = append(data, '\n')
	if _, err := a.rotator.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}

	return nil
}

// LogSessionStart logs the start of an annotation session.
func (a *AuditLogger) LogSessionStart(ctx context.Context, sessionID string, details map[string]any) error {
	a.SetSessionID(sessionID)
	return a.log(ctx, AuditEvent{
		EventType: AuditEventSessionStart,
		Action:    "start",
		Details:   details,
	}, 2)
}

// LogSessionEnd logs the end of an annotation session.
func (a *AuditLogger) LogSessionEnd(ctx context.Context, details map[string]any) error {
	err := a.log(ctx, AuditEvent{
		EventType: AuditEventSessionEnd,
		Action:    "end",
		Details:   details,
	}, 2)
	a.SetSessionID("")
	return err
}

// LogImport logs a batch of predictions loaded from source.
func (a *AuditLogger) LogImport(ctx context.Context, source string, count int) error {
	return a.log(ctx, AuditEvent{
		EventType: AuditEventImport,
		Action:    "import_predictions",
		Resource:  source,
		Details:   map[string]any{"count": count},
	}, 2)
}

// LogGroundTruth logs a label edit. line is the "manuscript/page/line" key.
func (a *AuditLogger) LogGroundTruth(ctx context.Context, line, oldLabel, newLabel string) error {
	return a.log(ctx, AuditEvent{
		EventType: AuditEventGroundTruth,
		Action:    "set_ground_truth",
		Resource:  line,
		Details:   map[string]any{"old": oldLabel, "new": newLabel},
	}, 2)
}

// LogScore logs a scoring run.
func (a *AuditLogger) LogScore(ctx context.Context, scope string, lines int, cer float64) error {
	return a.log(ctx, AuditEvent{
		EventType: AuditEventScore,
		Action:    "score",
		Resource:  scope,
		Details:   map[string]any{"lines": lines, "cer": cer},
	}, 2)
}

// LogExport logs an export of annotations.
func (a *AuditLogger) LogExport(ctx context.Context, scope, outputPath string, count int) error {
	return a.log(ctx, AuditEvent{
		EventType: AuditEventExport,
		Action:    "export",
		Resource:  scope,
		Details:   map[string]any{"output": outputPath, "count": count},
	}, 2)
}

// LogVerification logs a label fingerprint check.
func (a *AuditLogger) LogVerification(ctx context.Context, scope string, success bool, details map[string]any) error {
	result := "success"
	if !success {
		result = "failure"
	}
	return a.log(ctx, AuditEvent{
		EventType: AuditEventVerification,
		Action:    "verify",
		Resource:  scope,
		Result:    result,
		Details:   details,
	}, 2)
}

// LogKeymapReload logs a keymap overlay being applied.
func (a *AuditLogger) LogKeymapReload(ctx context.Context, path string, err error) error {
	event := AuditEvent{
		EventType: AuditEventKeymapReload,
		Action:    "reload",
		Resource:  path,
	}
	if err != nil {
		event.Result = "failure"
		event.Error = err.Error()
	}
	return a.log(ctx, event, 2)
}

// LogConfigChange logs a configuration change.
func (a *AuditLogger) LogConfigChange(ctx context.Context, setting, oldValue, newValue string) error {
	return a.log(ctx, AuditEvent{
		EventType: AuditEventConfigChange,
		Action:    "modify",
		Resource:  setting,
		Details:   map[string]any{"old": oldValue, "new": newValue},
	}, 2)
}

// LogError logs a failed operation.
func (a *AuditLogger) LogError(ctx context.Context, operation string, err error, details map[string]any) error {
	return a.log(ctx, AuditEvent{
		EventType: AuditEventError,
		Action:    operation,
		Result:    "failure",
		Error:     err.Error(),
		Details:   details,
	}, 2)
}

// Close closes the audit logger.
func (a *AuditLogger) Close() error {
	return a.rotator.Close()
}

// Sync flushes the audit log to disk.
func (a *AuditLogger) Sync() error {
	return a.rotator.Sync()
}
