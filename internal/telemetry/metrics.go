package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency for the orchestrator API.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "enrollcore",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// EnrollmentOutcomesTotal counts successful enrollment state changes by
// result: enrolled, waitlisted, dropped, promoted. Denials and conflicts are
// counted by PolicyDenialsTotal and EventStoreConflictsTotal instead.
var EnrollmentOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "enrollcore",
		Subsystem: "enrollment",
		Name:      "outcomes_total",
		Help:      "Total number of successful enrollment state changes by result.",
	},
	[]string{"result"},
)

// PolicyDenialsTotal counts policy denials by the violated rule.
var PolicyDenialsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "enrollcore",
		Subsystem: "policy",
		Name:      "denials_total",
		Help:      "Total number of enrollment policy denials by rule.",
	},
	[]string{"rule"},
)

// EventStoreConflictsTotal counts requests whose optimistic-concurrency
// append conflicts exhausted the retry budget; conflicts that a retry
// resolves are not counted.
var EventStoreConflictsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "enrollcore",
		Subsystem: "eventstore",
		Name:      "append_conflicts_total",
		Help:      "Total number of requests whose event store append version conflicts exhausted the retry budget.",
	},
	[]string{"stream_type"},
)

// LockWaitDuration tracks how long callers waited to acquire a named lease.
var LockWaitDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "enrollcore",
		Subsystem: "lockmgr",
		Name:      "wait_duration_seconds",
		Help:      "Time spent waiting to acquire a named lease.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	},
	[]string{"resource_kind"},
)

// AuditAppendFailuresTotal counts fatal audit chain write failures.
var AuditAppendFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "enrollcore",
		Subsystem: "audit",
		Name:      "append_failures_total",
		Help:      "Total number of fatal audit chain append failures.",
	},
)

// All returns the enrollment-core-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		EnrollmentOutcomesTotal,
		PolicyDenialsTotal,
		EventStoreConflictsTotal,
		LockWaitDuration,
		AuditAppendFailuresTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional collectors passed.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
