package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/vei/internal/logging"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Critical    bool                   `json:"critical"`
}

// HealthChecker defines the interface for health check functions
type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
	Name() string
	IsCritical() bool
}

// HealthCheckFunc is a function that implements HealthChecker
type HealthCheckFunc struct {
	name     string
	checkFn  func(ctx context.Context) HealthCheck
	critical bool
}

// NewHealthCheckFunc creates a new health check function
func NewHealthCheckFunc(name string, critical bool, checkFn func(ctx context.Context) HealthCheck) *HealthCheckFunc {
	return &HealthCheckFunc{name: name, checkFn: checkFn, critical: critical}
}

func (h *HealthCheckFunc) Check(ctx context.Context) HealthCheck { return h.checkFn(ctx) }
func (h *HealthCheckFunc) Name() string                         { return h.name }
func (h *HealthCheckFunc) IsCritical() bool                     { return h.critical }

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Uptime    time.Duration          `json:"uptime"`
	Checks    map[string]HealthCheck `json:"checks"`
	System    SystemInfo             `json:"system"`
}

// SystemInfo provides system information
type SystemInfo struct {
	Hostname  string `json:"hostname"`
	Platform  string `json:"platform"`
	GoVersion string `json:"go_version"`
	PID       int    `json:"pid"`
}

// HealthMonitor runs registered checks on demand.
type HealthMonitor struct {
	mu      sync.RWMutex
	checks  map[string]HealthChecker
	logger  logging.Logger
	version string
	started time.Time
	timeout time.Duration
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(logger logging.Logger, version string) *HealthMonitor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &HealthMonitor{
		checks:  make(map[string]HealthChecker),
		logger:  logger.WithComponent("health"),
		version: version,
		started: time.Now(),
		timeout: 5 * time.Second,
	}
}

// RegisterCheck registers a health check, replacing one of the same name.
func (hm *HealthMonitor) RegisterCheck(checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checks[checker.Name()] = checker
}

// Check runs every registered check and aggregates the results.
func (hm *HealthMonitor) Check(ctx context.Context) HealthResponse {
	hm.mu.RLock()
	checkers := make([]HealthChecker, 0, len(hm.checks))
	for _, c := range hm.checks {
		checkers = append(checkers, c)
	}
	hm.mu.RUnlock()
	sort.Slice(checkers, func(i, j int) bool { return checkers[i].Name() < checkers[j].Name() })

	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	checks := make(map[string]HealthCheck, len(checkers))
	for _, c := range checkers {
		start := time.Now()
		result := c.Check(ctx)
		result.Name = c.Name()
		result.Critical = c.IsCritical()
		result.Duration = time.Since(start)
		result.LastChecked = time.Now()
		checks[result.Name] = result

		if result.Status != HealthStatusHealthy {
			hm.logger.Warn(ctx, nil, "Health check failed",
				"name", result.Name,
				"status", string(result.Status),
				"message", result.Message)
		}
	}

	return HealthResponse{
		Status:    overallStatus(checks),
		Timestamp: time.Now(),
		Version:   hm.version,
		Uptime:    time.Since(hm.started),
		Checks:    checks,
		System:    systemInfo(),
	}
}

// overallStatus is unhealthy when a critical check fails and degraded when
// any other check is not healthy.
func overallStatus(checks map[string]HealthCheck) HealthStatus {
	status := HealthStatusHealthy
	for _, check := range checks {
		switch {
		case check.Critical && check.Status == HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case check.Status != HealthStatusHealthy:
			status = HealthStatusDegraded
		}
	}
	return status
}

// HTTPHandler returns an HTTP handler for health checks
func (hm *HealthMonitor) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hm.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(health); err != nil {
			hm.logger.Error(r.Context(), err, "Failed to encode health response")
		}
	}
}

func systemInfo() SystemInfo {
	hostname, _ := os.Hostname()
	return SystemInfo{
		Hostname:  hostname,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		GoVersion: runtime.Version(),
		PID:       os.Getpid(),
	}
}
