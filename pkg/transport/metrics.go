package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gt8004_batches_sent_total",
		Help: "Log batches accepted by the ingestion endpoint",
	})
	batchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gt8004_batches_failed_total",
		Help: "Log batches that exhausted all delivery attempts",
	})
	deliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gt8004_delivery_attempts_total",
		Help: "Individual POSTs to the ingestion endpoint by outcome",
	}, []string{"outcome"})
	entriesRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gt8004_entries_requeued_total",
		Help: "Entries put back at the head of the buffer after a failed flush",
	})
	entriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gt8004_entries_dropped_total",
		Help: "Entries discarded because they could not be encoded",
	})
	bufferLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gt8004_buffer_entries",
		Help: "Entries waiting in the transport buffer",
	})
	breakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gt8004_breaker_open",
		Help: "1 while the delivery circuit breaker is open",
	})
	deliveryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gt8004_delivery_latency_seconds",
		Help:    "Time spent on a single delivery attempt",
		Buckets: prometheus.DefBuckets,
	})
)
