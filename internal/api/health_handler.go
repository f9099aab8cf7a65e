package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/founderfund/waitlist/internal/membersync"
	"github.com/founderfund/waitlist/internal/pkg/logger"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded", "disabled"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// StorePinger is the part of the signup store the health checks need.
type StorePinger interface {
	Name() string
	Ping(ctx context.Context) error
}

const (
	checkStore      = "store"
	checkMemberSync = "member_sync"

	healthVersion = "1.0.0"
	checkTimeout  = 3 * time.Second
	slowThreshold = time.Second
)

// HealthChecker reports on the signup store (critical) and the member sync
// provider (non-critical: signups still succeed while it is down).
type HealthChecker struct {
	store     StorePinger
	syncer    membersync.Syncer
	log       *logger.Logger
	startTime time.Time
}

// NewHealthChecker creates a new HealthChecker. syncer may be nil; a nil
// log falls back to the package default.
func NewHealthChecker(store StorePinger, syncer membersync.Syncer, log *logger.Logger) *HealthChecker {
	if log == nil {
		log = logger.Default()
	}
	return &HealthChecker{store: store, syncer: syncer, log: log, startTime: time.Now()}
}

// HandleHealth returns the health of every component. It always answers
// 200; the status field carries the verdict.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())

	respondJSON(w, http.StatusOK, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness always returns 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when the store is unreachable.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	httpStatus := http.StatusOK
	if !ready {
		httpStatus = http.StatusServiceUnavailable
	}

	respondJSON(w, httpStatus, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 2)

	go func() { ch <- result{checkStore, hc.checkStore(ctx)} }()
	go func() { ch <- result{checkMemberSync, hc.checkMemberSync(ctx)} }()

	checks := make(map[string]ComponentCheck, 2)
	for i := 0; i < 2; i++ {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

func (hc *HealthChecker) checkStore(ctx context.Context) ComponentCheck {
	if hc.store == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}
	check := hc.ping(ctx, checkStore, hc.store.Ping)
	if check.Status == "up" {
		check.Message = hc.store.Name()
	}
	return check
}

func (hc *HealthChecker) checkMemberSync(ctx context.Context) ComponentCheck {
	p, ok := hc.syncer.(membersync.Pinger)
	if !ok {
		return ComponentCheck{Status: "disabled", Message: "not configured"}
	}
	return hc.ping(ctx, checkMemberSync, p.Ping)
}

// ping runs fn under checkTimeout. Failure detail goes to the log only;
// the response carries a fixed message since /health is unauthenticated.
func (hc *HealthChecker) ping(ctx context.Context, component string, fn func(context.Context) error) ComponentCheck {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	latency := time.Since(start)

	if err != nil {
		hc.log.Warn("health check failed", "component", component, "latency", latency.String(), "error", err.Error())
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: "unreachable",
		}
	}
	if latency > slowThreshold {
		return ComponentCheck{
			Status:  "degraded",
			Latency: latency.String(),
			Message: "slow response",
		}
	}
	return ComponentCheck{Status: "up", Latency: latency.String()}
}

// determineOverallStatus derives the aggregate status from individual checks.
//
// Rules:
//   - "unhealthy" if the store is down
//   - "degraded"  if any check is degraded or member sync is down
//   - "healthy"   otherwise
func determineOverallStatus(checks map[string]ComponentCheck) string {
	if s, ok := checks[checkStore]; ok && s.Status == "down" {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == "degraded" || c.Status == "down" {
			return "degraded"
		}
	}
	return "healthy"
}

// formatUptime produces a human-readable uptime string like "3d 4h 12m 5s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
