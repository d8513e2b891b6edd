// Package health runs component checks for devtype status.
//
// Checks run concurrently with a per-component timeout. A panicking or
// timed-out check is reported as unhealthy rather than failing the run.
package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates the component is degraded but functional.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusUnknown indicates the component status is unknown.
	StatusUnknown Status = "unknown"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check is a function that performs a health check.
type Check func(ctx context.Context) CheckResult

// Component represents a health-checkable component.
type Component struct {
	Name     string
	Critical bool // If true, failure makes overall status unhealthy
	Check    Check
	Timeout  time.Duration
}

// DefaultTimeout bounds a check that sets no timeout of its own.
const DefaultTimeout = 5 * time.Second

// Checker manages health checks.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]CheckResult
}

// NewChecker creates a new Checker.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*Component),
		results:    make(map[string]CheckResult),
	}
}

// Register registers a health check component.
func (c *Checker) Register(component *Component) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if component.Timeout == 0 {
		component.Timeout = DefaultTimeout
	}

	c.components[component.Name] = component
	c.results[component.Name] = CheckResult{Status: StatusUnknown}
}

// RegisterFunc registers a simple health check function.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{
		Name:     name,
		Critical: critical,
		Check:    check,
	})
}

// Check runs all registered health checks.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	components := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		components = append(components, comp)
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult)
	var wg sync.WaitGroup

	for _, comp := range components {
		wg.Add(1)
		go func(comp *Component) {
			defer wg.Done()
			result := run(ctx, comp)

			c.mu.Lock()
			c.results[comp.Name] = result
			results[comp.Name] = result
			c.mu.Unlock()
		}(comp)
	}

	wg.Wait()
	return results
}

func run(ctx context.Context, comp *Component) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := time.Now()
	resultCh := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- CheckResult{
					Status:  StatusUnhealthy,
					Message: "check panicked",
					Error:   fmt.Sprintf("%v", r),
				}
			}
		}()
		resultCh <- comp.Check(checkCtx)
	}()

	var result CheckResult
	select {
	case result = <-resultCh:
	case <-checkCtx.Done():
		result = CheckResult{
			Status:  StatusUnhealthy,
			Message: "check timed out",
			Error:   checkCtx.Err().Error(),
		}
	}

	result.LastChecked = start
	result.Duration = time.Since(start)
	return result
}

// OverallStatus returns the aggregated health status.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hasUnknown := false
	hasDegraded := false

	for name, result := range c.results {
		comp := c.components[name]
		if comp == nil {
			continue
		}

		switch result.Status {
		case StatusUnhealthy:
			if comp.Critical {
				return StatusUnhealthy
			}
			hasDegraded = true
		case StatusDegraded:
			hasDegraded = true
		case StatusUnknown:
			if comp.Critical {
				hasUnknown = true
			}
		}
	}

	if hasUnknown {
		return StatusUnknown
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// Entry is a named result in a Report.
type Entry struct {
	Name     string
	Critical bool
	Result   CheckResult
}

// Report returns the last results ordered by component name.
func (c *Checker) Report() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.results))
	for name, result := range c.results {
		comp := c.components[name]
		entries = append(entries, Entry{
			Name:     name,
			Critical: comp != nil && comp.Critical,
			Result:   result,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Common health checks.

// ErrDegraded marks an error that should degrade rather than fail a check.
var ErrDegraded = errors.New("degraded")

// DatabaseCheck returns a health check for database connectivity.
func DatabaseCheck(pingFunc func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		err := pingFunc(ctx)
		if err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "database check failed",
				Error:   err.Error(),
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: "database ok",
		}
	}
}

// FileExistsCheck returns a health check for file existence. An empty path
// is healthy, for optional files.
func FileExistsCheck(path string) Check {
	return func(ctx context.Context) CheckResult {
		if path == "" {
			return CheckResult{Status: StatusHealthy, Message: "not configured"}
		}
		info, err := os.Stat(path)
		if err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "file not accessible",
				Error:   err.Error(),
				Details: map[string]any{"path": path},
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: "file exists",
			Details: map[string]any{"path": path, "size": info.Size()},
		}
	}
}

// CustomCheck creates a check from a simple function. Errors wrapping
// ErrDegraded produce a degraded result.
func CustomCheck(fn func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		err := fn(ctx)
		switch {
		case err == nil:
			return CheckResult{
				Status:  StatusHealthy,
				Message: "check passed",
			}
		case errors.Is(err, ErrDegraded):
			return CheckResult{
				Status:  StatusDegraded,
				Message: "check degraded",
				Error:   err.Error(),
			}
		default:
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "check failed",
				Error:   err.Error(),
			}
		}
	}
}
