package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPResponseTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CommissionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commissions_created_total",
			Help: "Commission records created by the allocator",
		},
		[]string{"tier", "level"},
	)

	AllocationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_failures_total",
			Help: "Commission allocations that did not complete",
		},
		[]string{"reason"},
	)

	MilestoneAwards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_awards_total",
			Help: "Milestone awards fired",
		},
		[]string{"threshold"},
	)

	PaymentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Payment status transitions applied from webhooks and sweeps",
		},
		[]string{"status"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Open member websocket connections on this instance",
		},
	)
)
