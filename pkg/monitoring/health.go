package monitoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is the result of one checker
type HealthCheck struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Optional    bool                   `json:"optional,omitempty"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// HealthReport is the aggregate served on the health endpoint
type HealthReport struct {
	Status    HealthStatus   `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Service   string         `json:"service"`
	Version   string         `json:"version"`
	Checks    []HealthCheck  `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// HealthChecker checks one dependency
type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
}

// CheckFunc adapts a plain function to HealthChecker
type CheckFunc func(ctx context.Context) HealthCheck

// Check calls f(ctx)
func (f CheckFunc) Check(ctx context.Context) HealthCheck {
	return f(ctx)
}

type registration struct {
	checker  HealthChecker
	optional bool
}

// HealthManager runs the registered checks and aggregates them.
//
// An optional check never makes the service unhealthy: its failures are
// reported as degraded. The supply service registers the remote order store
// that way since the local cache keeps it usable.
type HealthManager struct {
	serviceName    string
	serviceVersion string

	mu       sync.RWMutex
	checkers map[string]registration
	timeout  time.Duration
}

// NewHealthManager creates a new health manager
func NewHealthManager(serviceName, serviceVersion string) *HealthManager {
	return &HealthManager{
		serviceName:    serviceName,
		serviceVersion: serviceVersion,
		checkers:       make(map[string]registration),
		timeout:        5 * time.Second,
	}
}

// RegisterChecker registers a check whose failure makes the service unhealthy
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.register(name, registration{checker: checker})
}

// RegisterOptional registers a check whose failure only degrades the service
func (hm *HealthManager) RegisterOptional(name string, checker HealthChecker) {
	hm.register(name, registration{checker: checker, optional: true})
}

func (hm *HealthManager) register(name string, reg registration) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = reg
}

// SetTimeout bounds each individual check
func (hm *HealthManager) SetTimeout(timeout time.Duration) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.timeout = timeout
}

// CheckHealth runs every check concurrently and returns the report with
// checks ordered by name
func (hm *HealthManager) CheckHealth(ctx context.Context) *HealthReport {
	hm.mu.RLock()
	regs := make(map[string]registration, len(hm.checkers))
	for name, reg := range hm.checkers {
		regs[name] = reg
	}
	timeout := hm.timeout
	hm.mu.RUnlock()

	checks := make([]HealthCheck, 0, len(regs))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, reg := range regs {
		wg.Add(1)
		go func(name string, reg registration) {
			defer wg.Done()
			check := runCheck(ctx, timeout, reg.checker)
			check.Name = name
			if reg.optional {
				check.Optional = true
				if check.Status == HealthStatusUnhealthy {
					check.Status = HealthStatusDegraded
				}
			}

			mu.Lock()
			checks = append(checks, check)
			mu.Unlock()
		}(name, reg)
	}
	wg.Wait()

	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })

	report := &HealthReport{
		Status:    HealthStatusHealthy,
		Service:   hm.serviceName,
		Version:   hm.serviceVersion,
		Timestamp: time.Now(),
		Checks:    checks,
		Summary:   make(map[string]int),
	}
	for _, check := range checks {
		report.Summary[string(check.Status)]++
	}
	switch {
	case report.Summary[string(HealthStatusUnhealthy)] > 0:
		report.Status = HealthStatusUnhealthy
	case report.Summary[string(HealthStatusDegraded)] > 0:
		report.Status = HealthStatusDegraded
	}
	return report
}

func runCheck(ctx context.Context, timeout time.Duration, checker HealthChecker) HealthCheck {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	check := checker.Check(checkCtx)
	check.LastChecked = start
	check.Duration = time.Since(start)
	if check.Status == "" {
		check.Status = HealthStatusUnhealthy
	}
	return check
}

// HTTPHandler serves the report; 503 only when unhealthy
func (hm *HealthManager) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := hm.CheckHealth(r.Context())

		status := http.StatusOK
		if report.Status == HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// DatabaseHealthChecker pings the order store database and watches the
// connection pool
type DatabaseHealthChecker struct {
	db *sql.DB
}

// NewDatabaseHealthChecker creates a new database health checker
func NewDatabaseHealthChecker(db *sql.DB) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{db: db}
}

// Check pings the database. A pool with at most one free connection left
// is reported as degraded.
func (dhc *DatabaseHealthChecker) Check(ctx context.Context) HealthCheck {
	if err := dhc.db.PingContext(ctx); err != nil {
		return HealthCheck{
			Status:  HealthStatusUnhealthy,
			Message: fmt.Sprintf("Database connection failed: %v", err),
		}
	}

	stats := dhc.db.Stats()
	check := HealthCheck{
		Status:  HealthStatusHealthy,
		Message: "Database connection healthy",
		Details: map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"wait_count":       stats.WaitCount,
		},
	}
	if stats.MaxOpenConnections > 0 && stats.MaxOpenConnections-stats.InUse <= 1 {
		check.Status = HealthStatusDegraded
		check.Message = "Database connection pool nearly exhausted"
	}
	return check
}

// HTTPHealthChecker calls a health endpoint that answers {"ok": bool}.
// It succeeds on a 2xx whose body does not say ok=false.
type HTTPHealthChecker struct {
	url    string
	client *http.Client
}

// NewHTTPHealthChecker checks url; timeout 0 relies on the manager's bound
func NewHTTPHealthChecker(url string, timeout time.Duration) *HTTPHealthChecker {
	return &HTTPHealthChecker{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Check performs the request
func (hhc *HTTPHealthChecker) Check(ctx context.Context) HealthCheck {
	check := HealthCheck{
		Status:  HealthStatusUnhealthy,
		Details: map[string]interface{}{"url": hhc.url},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hhc.url, nil)
	if err != nil {
		check.Message = fmt.Sprintf("Failed to create request: %v", err)
		return check
	}

	resp, err := hhc.client.Do(req)
	if err != nil {
		check.Message = fmt.Sprintf("Health request failed: %v", err)
		return check
	}
	defer resp.Body.Close()
	check.Details["status_code"] = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		check.Message = fmt.Sprintf("Health endpoint returned %d", resp.StatusCode)
		return check
	}

	var body struct {
		OK *bool `json:"ok"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil && body.OK != nil && !*body.OK {
		check.Message = "Health endpoint reported ok=false"
		return check
	}

	check.Status = HealthStatusHealthy
	check.Message = "Health endpoint reachable"
	return check
}
