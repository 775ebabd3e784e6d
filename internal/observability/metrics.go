// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "community_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// CascadeRuns counts post-deletion cascades by outcome.
	CascadeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "community_cascade_runs_total",
		Help: "Total number of post deletion cascades by outcome",
	}, []string{"outcome"})

	// CascadeRows counts dependent rows tombstoned by cascades, per kind.
	CascadeRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "community_cascade_rows_total",
		Help: "Total number of dependent rows tombstoned by post deletion",
	}, []string{"kind"})

	// CascadeDuration records cascade transaction latency.
	CascadeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "community_cascade_duration_seconds",
		Help:    "Post deletion cascade latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// MemberAnonymized counts members anonymized by the cleanup job.
	MemberAnonymized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "community_member_anonymized_total",
		Help: "Total number of withdrawn members anonymized after the grace window",
	})

	// MemberRestore counts restoration attempts by outcome.
	MemberRestore = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "community_member_restore_total",
		Help: "Total number of member restoration attempts by outcome",
	}, []string{"outcome"})

	// CleanupRuns counts cleanup passes by outcome.
	CleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "community_cleanup_runs_total",
		Help: "Total number of cleanup passes by outcome",
	}, []string{"outcome"})

	// BlobOperations counts blob store calls by backend, operation and outcome.
	BlobOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "community_blob_operations_total",
		Help: "Total number of blob store operations",
	}, []string{"backend", "operation", "outcome"})
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
)

// TrackCascade returns a function that records cascade latency when called (e.g. defer).
func TrackCascade() func() {
	start := time.Now()
	return func() {
		CascadeDuration.Observe(time.Since(start).Seconds())
	}
}
