// Package metrics registers Chorus's Prometheus collectors: lock
// operations, reaper cycles, atomic operation counts, and idempotency
// replay hits, exposed at GET /metrics via promhttp.Handler.
// LockAcquiresTotal and LocksActive are registered and exposed, but no
// code path updates them, so they stay at zero.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LockAcquiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_lock_acquires_total",
			Help: "Total number of lock acquire attempts by purpose and outcome",
		},
		[]string{"purpose", "outcome"},
	)

	LocksActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chorus_locks_active",
			Help: "Current number of active (unexpired) task locks",
		},
	)

	ReaperCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chorus_reaper_cycles_total",
			Help: "Total number of reaper sweeps completed",
		},
	)

	ReaperLocksReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chorus_reaper_locks_reaped_total",
			Help: "Total number of expired locks removed by the reaper",
		},
	)

	ReaperIdempotencyRecordsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chorus_reaper_idempotency_records_reaped_total",
			Help: "Total number of expired idempotency records removed by the reaper",
		},
	)

	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_operations_total",
			Help: "Total number of atomic operations invoked by kind",
		},
		[]string{"operation"},
	)

	IdempotencyReplaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_idempotency_replays_total",
			Help: "Total number of requests short-circuited by idempotency replay",
		},
		[]string{"operation"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chorus_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		LockAcquiresTotal,
		LocksActive,
		ReaperCyclesTotal,
		ReaperLocksReapedTotal,
		ReaperIdempotencyRecordsReapedTotal,
		OperationsTotal,
		IdempotencyReplaysTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// OpsAdapter satisfies ops.Metrics over the package-level collectors above.
type OpsAdapter struct{}

func (OpsAdapter) ObserveOperation(operation string) {
	OperationsTotal.WithLabelValues(operation).Inc()
}

func (OpsAdapter) ObserveIdempotencyReplay(operation string) {
	IdempotencyReplaysTotal.WithLabelValues(operation).Inc()
}
