package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/bulk-mailer/internal/pkg/httputil"
)

// Component states reported by a probe.
const (
	stateUp       = "up"
	stateDegraded = "degraded"
	stateDown     = "down"
	stateSkipped  = "skipped"
)

// HealthStatus is the body of /health.
type HealthStatus struct {
	Status  string                    `json:"status"` // healthy, degraded, unhealthy
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the result of one probe.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// QueueDepth reports how many steps are waiting.
type QueueDepth func(ctx context.Context) (int64, error)

type probe struct {
	name     string
	timeout  time.Duration
	critical bool
	run      func(ctx context.Context) ComponentCheck
}

// HealthChecker reports on the job store, Redis and the step queue. Nil
// dependencies are reported as skipped.
type HealthChecker struct {
	probes  []probe
	started time.Time
}

const healthVersion = "1.0.0"

// highQueueDepth marks the queue degraded.
const highQueueDepth = 10000

// NewHealthChecker builds probes for the dependencies that are set.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, depth QueueDepth) *HealthChecker {
	hc := &HealthChecker{started: time.Now()}

	dbProbe := probe{name: "database", timeout: 3 * time.Second, critical: true, run: skipped}
	if db != nil {
		dbProbe.run = func(ctx context.Context) ComponentCheck {
			return timedPing(time.Second, func() error { return db.PingContext(ctx) })
		}
	}

	redisProbe := probe{name: "redis", timeout: 2 * time.Second, run: skipped}
	if redisClient != nil {
		redisProbe.run = func(ctx context.Context) ComponentCheck {
			return timedPing(500*time.Millisecond, func() error { return redisClient.Ping(ctx).Err() })
		}
	}

	queueProbe := probe{name: "queue", timeout: 2 * time.Second, run: skipped}
	if depth != nil {
		queueProbe.run = func(ctx context.Context) ComponentCheck { return checkDepth(ctx, depth) }
	}

	hc.probes = []probe{dbProbe, redisProbe, queueProbe}
	return hc
}

// HandleHealth always answers 200; the body carries the status.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks, overall := hc.run(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  overall,
		Version: healthVersion,
		Uptime:  time.Since(hc.started).Round(time.Second).String(),
		Checks:  checks,
	})
}

// HandleReadiness answers 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks, overall := hc.run(r.Context())
	ready := overall != "unhealthy"
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) run(ctx context.Context) (map[string]ComponentCheck, string) {
	results := make([]ComponentCheck, len(hc.probes))
	var wg sync.WaitGroup
	for i, p := range hc.probes {
		wg.Add(1)
		go func(i int, p probe) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			results[i] = p.run(pctx)
		}(i, p)
	}
	wg.Wait()

	checks := make(map[string]ComponentCheck, len(hc.probes))
	overall := "healthy"
	for i, p := range hc.probes {
		c := results[i]
		checks[p.name] = c
		switch {
		case c.Status == stateDown && p.critical:
			overall = "unhealthy"
		case (c.Status == stateDown || c.Status == stateDegraded) && overall == "healthy":
			overall = "degraded"
		}
	}
	return checks, overall
}

func skipped(context.Context) ComponentCheck {
	return ComponentCheck{Status: stateSkipped, Message: "not configured"}
}

func timedPing(slow time.Duration, ping func() error) ComponentCheck {
	start := time.Now()
	err := ping()
	latency := time.Since(start)
	c := ComponentCheck{Latency: latency.String()}
	switch {
	case err != nil:
		c.Status, c.Message = stateDown, "ping failed"
	case latency > slow:
		c.Status, c.Message = stateDegraded, fmt.Sprintf("slow response (%s)", latency)
	default:
		c.Status, c.Message = stateUp, "connected"
	}
	return c
}

func checkDepth(ctx context.Context, depth QueueDepth) ComponentCheck {
	n, err := depth(ctx)
	switch {
	case err != nil:
		return ComponentCheck{Status: stateDegraded, Message: "depth check failed"}
	case n > highQueueDepth:
		return ComponentCheck{Status: stateDegraded, Message: fmt.Sprintf("%d steps queued", n)}
	default:
		return ComponentCheck{Status: stateUp, Message: fmt.Sprintf("%d steps queued", n)}
	}
}
