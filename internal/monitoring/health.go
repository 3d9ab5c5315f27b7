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

	"github.com/elisoncampos/reactive-views-sub000/internal/logging"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is the result of one check.
type HealthCheck struct {
	Name     string                 `json:"name"`
	Status   HealthStatus           `json:"status"`
	Message  string                 `json:"message,omitempty"`
	Duration time.Duration          `json:"duration"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Critical bool                   `json:"critical"`
}

// HealthChecker is implemented by anything that can report its health.
type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
	Name() string
	IsCritical() bool
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc struct {
	name     string
	checkFn  func(ctx context.Context) HealthCheck
	critical bool
}

func (h *HealthCheckFunc) Check(ctx context.Context) HealthCheck { return h.checkFn(ctx) }
func (h *HealthCheckFunc) Name() string                          { return h.name }
func (h *HealthCheckFunc) IsCritical() bool                      { return h.critical }

// NewHealthCheckFunc creates a named check.
func NewHealthCheckFunc(name string, critical bool, checkFn func(ctx context.Context) HealthCheck) *HealthCheckFunc {
	return &HealthCheckFunc{name: name, checkFn: checkFn, critical: critical}
}

// HealthResponse is the body served on /healthz.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`
	Checks    []HealthCheck `json:"checks"`
	PID       int           `json:"pid"`
	Platform  string        `json:"platform"`
}

// HealthMonitor runs registered checks on demand.
type HealthMonitor struct {
	mutex   sync.RWMutex
	checks  map[string]HealthChecker
	logger  logging.Logger
	timeout time.Duration
	started time.Time
}

// NewHealthMonitor creates a monitor whose checks each get timeout to finish.
func NewHealthMonitor(logger logging.Logger, timeout time.Duration) *HealthMonitor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthMonitor{
		checks:  make(map[string]HealthChecker),
		logger:  logger.WithComponent("health_monitor"),
		timeout: timeout,
		started: time.Now(),
	}
}

// RegisterCheck registers a health check, replacing one with the same name.
func (hm *HealthMonitor) RegisterCheck(checker HealthChecker) {
	hm.mutex.Lock()
	defer hm.mutex.Unlock()

	hm.checks[checker.Name()] = checker
}

// Check runs every registered check concurrently and aggregates the results.
func (hm *HealthMonitor) Check(ctx context.Context) HealthResponse {
	hm.mutex.RLock()
	checkers := make([]HealthChecker, 0, len(hm.checks))
	for _, c := range hm.checks {
		checkers = append(checkers, c)
	}
	hm.mutex.RUnlock()

	results := make([]HealthCheck, len(checkers))
	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func(i int, checker HealthChecker) {
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, hm.timeout)
			defer cancel()

			start := time.Now()
			result := checker.Check(cctx)
			result.Name = checker.Name()
			result.Critical = checker.IsCritical()
			result.Duration = time.Since(start)
			results[i] = result
		}(i, checker)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	for _, r := range results {
		if r.Status != HealthStatusHealthy {
			hm.logger.Warn(ctx, nil, "Health check failed",
				"name", r.Name,
				"status", string(r.Status),
				"message", r.Message)
		}
	}

	return HealthResponse{
		Status:    overallStatus(results),
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.started),
		Checks:    results,
		PID:       os.Getpid(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// overallStatus is unhealthy when a critical check is unhealthy and degraded
// when anything else is not healthy.
func overallStatus(checks []HealthCheck) HealthStatus {
	status := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Critical && c.Status == HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case c.Status != HealthStatusHealthy:
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

// PingChecker turns a ping function into a check. An error marks the check
// unhealthy.
func PingChecker(name string, critical bool, ping func(ctx context.Context) error) HealthChecker {
	return NewHealthCheckFunc(name, critical, func(ctx context.Context) HealthCheck {
		if err := ping(ctx); err != nil {
			return HealthCheck{Status: HealthStatusUnhealthy, Message: err.Error()}
		}
		return HealthCheck{Status: HealthStatusHealthy}
	})
}

// GoroutineHealthChecker flags goroutine leaks.
func GoroutineHealthChecker() HealthChecker {
	return NewHealthCheckFunc("goroutines", false, func(ctx context.Context) HealthCheck {
		goroutines := runtime.NumGoroutine()

		status := HealthStatusHealthy
		if goroutines > 10000 {
			status = HealthStatusDegraded
		}

		return HealthCheck{
			Status:   status,
			Metadata: map[string]interface{}{"count": goroutines},
		}
	})
}
