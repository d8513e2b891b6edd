package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// CrashReport represents information about a crash.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	Version      string         `json:"version"`
	GoVersion    string         `json:"go_version"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	NumGoroutine int            `json:"num_goroutine"`
	PanicValue   string         `json:"panic_value"`
	StackTrace   string         `json:"stack_trace"`
	Component    string         `json:"component,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// CrashHandler handles panic recovery and crash reporting.
type CrashHandler struct {
	mu        sync.Mutex
	crashDir  string
	version   string
	component string
	sessionID string
	out       io.Writer
	onCrash   func(CrashReport)
}

// CrashHandlerConfig configures the crash handler.
type CrashHandlerConfig struct {
	// CrashDir is the directory to write crash dumps.
	CrashDir string

	// Version is the application version.
	Version string

	// Component is the component name.
	Component string

	// Output receives a short crash summary. Defaults to stderr.
	Output io.Writer

	// OnCrash runs before the report is written. The pad uses it to
	// restore the terminal.
	OnCrash func(CrashReport)
}

// DefaultCrashDir returns the platform-specific default crash directory.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(defaultLogPath()), "crashes")
}

// NewCrashHandler creates a new CrashHandler.
func NewCrashHandler(cfg *CrashHandlerConfig) *CrashHandler {
	if cfg == nil {
		cfg = &CrashHandlerConfig{}
	}
	if cfg.CrashDir == "" {
		cfg.CrashDir = DefaultCrashDir()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	return &CrashHandler{
		crashDir:  cfg.CrashDir,
		version:   cfg.Version,
		component: cfg.Component,
		out:       cfg.Output,
		onCrash:   cfg.OnCrash,
	}
}

// SetSessionID tags later reports with a session.
func (h *CrashHandler) SetSessionID(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionID = sessionID
}

// Recover runs fn and turns a panic into a crash report. It reports
// whether fn panicked.
func (h *CrashHandler) Recover(fn func()) (panicked bool) {
	return h.RecoverWithContext(nil, fn)
}

// RecoverWithContext is Recover with extra context in the report.
func (h *CrashHandler) RecoverWithContext(contextInfo map[string]any, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			h.HandlePanic(r, contextInfo)
		}
	}()
	fn()
	return false
}

// HandlePanic processes a panic value and writes a crash report.
func (h *CrashHandler) HandlePanic(panicValue any, contextInfo map[string]any) CrashReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GoVersion:    runtime.Version(),
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", panicValue),
		StackTrace:   string(debug.Stack()),
		Component:    h.component,
		SessionID:    h.sessionID,
		Context:      contextInfo,
	}

	if h.onCrash != nil {
		h.onCrash(report)
	}

	path, err := h.writeCrashDump(report)

	fmt.Fprintf(h.out, "\n=== CRASH REPORT ===\n")
	fmt.Fprintf(h.out, "Time: %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(h.out, "Panic: %s\n", report.PanicValue)
	if err != nil {
		fmt.Fprintf(h.out, "Could not write crash dump: %v\n", err)
		fmt.Fprintf(h.out, "Stack trace:\n%s\n", report.StackTrace)
	} else {
		fmt.Fprintf(h.out, "Crash dump written to: %s\n", path)
	}

	return report
}

func (h *CrashHandler) writeCrashDump(report CrashReport) (string, error) {
	if err := os.MkdirAll(h.crashDir, 0750); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}

	name := fmt.Sprintf("crash-%s-%s.json",
		report.Component,
		report.Timestamp.Format("20060102-150405.000000000"))
	path := filepath.Join(h.crashDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}

	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// GetCrashReports returns stored crash reports, oldest first.
func (h *CrashHandler) GetCrashReports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}

		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}

	return reports, nil
}

// ClearCrashReports removes all crash reports.
func (h *CrashHandler) ClearCrashReports() error {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return err
	}

	for _, file := range files {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
