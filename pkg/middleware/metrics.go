package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entriesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gt8004_entries_captured_total",
		Help: "Log entries built by the capture middleware, by status class",
	}, []string{"class"})
	bodiesTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gt8004_bodies_truncated_total",
		Help: "Captured request or response bodies cut at the size limit",
	})
	paymentParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gt8004_payment_header_invalid_total",
		Help: "Payment headers that could not be decoded",
	})
	sinkPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gt8004_sink_panics_total",
		Help: "Panics recovered while handing an entry to a sink",
	})
	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gt8004_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
	responseTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gt8004_response_ms",
		Help:    "Handler response time in milliseconds as recorded in log entries",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1_000, 2_500, 5_000, 10_000},
	})
)
