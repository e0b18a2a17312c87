// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transitions counts committed lifecycle transitions per record kind.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_lifecycle_transitions_total",
		Help: "Committed lifecycle transitions by record kind and transition",
	}, []string{"kind", "transition"})

	// HistoryEntries counts history rows written per record kind and event.
	HistoryEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_history_entries_total",
		Help: "History entries appended by record kind and event kind",
	}, []string{"kind", "event"})

	// Failures counts rejected or failed operations by error class.
	Failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_operation_failures_total",
		Help: "Failed lifecycle and query operations by record kind, operation and reason",
	}, []string{"kind", "operation", "reason"})

	// ListDuration tracks list query latency, planning included.
	ListDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventory_list_duration_seconds",
		Help:    "List query duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	}, []string{"kind"})

	// HTTPRequests tracks request latency by route and status.
	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventory_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
