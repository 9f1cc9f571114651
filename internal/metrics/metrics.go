// Package metrics provides Prometheus instrumentation for the Fraudpop pipeline.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudpop",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudpop",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// WebhookAdmissionsTotal counts inbound webhook outcomes.
	// result: admitted | duplicate | bad_signature | malformed
	WebhookAdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudpop",
			Name:      "webhook_admissions_total",
			Help:      "Total inbound webhook deliveries by admission result.",
		},
		[]string{"result"},
	)

	// JobsProcessedTotal counts job executions by final per-attempt outcome.
	// result: succeeded | retried | failed
	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudpop",
			Name:      "jobs_processed_total",
			Help:      "Total job attempts by outcome.",
		},
		[]string{"type", "result"},
	)

	// JobsTerminalFailures counts jobs that exhausted their retries.
	// An order that was never scored surfaces here; alert on any increase.
	JobsTerminalFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudpop",
			Name:      "jobs_terminal_failures_total",
			Help:      "Total jobs marked terminally failed after exhausting retries.",
		},
		[]string{"type"},
	)

	// JobDuration observes job execution time by type.
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudpop",
			Name:      "job_duration_seconds",
			Help:      "Job execution duration in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type"},
	)

	// QueueDepth tracks jobs currently queued for processing.
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudpop",
		Name:      "queue_depth",
		Help:      "Number of jobs currently queued.",
	})

	// VerdictsTotal counts scored orders by verdict.
	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudpop",
			Name:      "verdicts_total",
			Help:      "Total scored orders by verdict.",
		},
		[]string{"verdict"},
	)

	// WritebackAttemptsTotal counts verdict writeback attempts by result.
	// result: success | retryable | permanent | redirect | breaker_open
	WritebackAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudpop",
			Name:      "writeback_attempts_total",
			Help:      "Total verdict writeback attempts by result.",
		},
		[]string{"result"},
	)

	// IdentityBumpsTotal counts velocity counter increments by identifier kind.
	IdentityBumpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudpop",
			Name:      "identity_bumps_total",
			Help:      "Total hashed-identity sightings recorded by kind.",
		},
		[]string{"kind"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudpop", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudpop", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudpop", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudpop", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		WebhookAdmissionsTotal,
		JobsProcessedTotal,
		JobsTerminalFailures,
		JobDuration,
		QueueDepth,
		VerdictsTotal,
		WritebackAttemptsTotal,
		IdentityBumpsTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// statusBucket groups status codes into classes (2xx, 4xx, ...) to keep
// label cardinality low.
func statusBucket(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
