// Package metrics exposes the optional Prometheus exposition surface named
// in spec §4.5 ("GET /metrics ... interface only"): the core publishes
// counters and histograms the scheduler and RPC surface can update, without
// depending on any particular exporter wiring beyond the registry itself.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StreamingMetrics tracks SSE/gRPC-stream connection and event throughput
// as Prometheus collectors registered on a private registry, so embedding
// this package never collides with a host process's default registry.
type StreamingMetrics struct {
	registry *prometheus.Registry

	connectionsTotal  prometheus.Counter
	connectionsFailed prometheus.Counter
	reconnections     prometheus.Counter
	connectionSeconds prometheus.Histogram

	eventsTotal    prometheus.Counter
	eventsDropped  prometheus.Counter
	eventLatency   prometheus.Histogram
	processingTime prometheus.Histogram
}

// NewStreamingMetrics constructs a StreamingMetrics instance with its own
// registry, ready to be mounted at /metrics via Handler().
func NewStreamingMetrics() *StreamingMetrics {
	registry := prometheus.NewRegistry()

	m := &StreamingMetrics{
		registry: registry,
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "a2a_stream_connections_total",
			Help: "Total SSE/gRPC stream connections accepted.",
		}),
		connectionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "a2a_stream_connections_failed_total",
			Help: "Stream connections that failed to establish.",
		}),
		reconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "a2a_stream_reconnections_total",
			Help: "Client-initiated stream reconnections (resubscribe).",
		}),
		connectionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "a2a_stream_connection_duration_seconds",
			Help:    "Duration a stream connection stayed open.",
			Buckets: prometheus.DefBuckets,
		}),
		eventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "a2a_task_events_total",
			Help: "Total TaskEvents published by the scheduler.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "a2a_task_events_dropped_total",
			Help: "Non-final TaskEvents dropped under the slow-subscriber policy.",
		}),
		eventLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "a2a_task_event_latency_seconds",
			Help:    "Time from event publish to subscriber delivery.",
			Buckets: prometheus.DefBuckets,
		}),
		processingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "a2a_task_event_processing_seconds",
			Help:    "Time spent building and persisting a TaskEvent.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.connectionsTotal, m.connectionsFailed, m.reconnections, m.connectionSeconds,
		m.eventsTotal, m.eventsDropped, m.eventLatency, m.processingTime,
	)

	return m
}

// RecordConnection records a connection attempt.
func (m *StreamingMetrics) RecordConnection(success bool, duration time.Duration) {
	m.connectionsTotal.Inc()
	if !success {
		m.connectionsFailed.Inc()
	}
	m.connectionSeconds.Observe(duration.Seconds())
}

// RecordReconnection records a client-initiated resubscribe.
func (m *StreamingMetrics) RecordReconnection() {
	m.reconnections.Inc()
}

// RecordEvent records one published TaskEvent.
func (m *StreamingMetrics) RecordEvent(dropped bool, latency, processingTime time.Duration) {
	m.eventsTotal.Inc()
	if dropped {
		m.eventsDropped.Inc()
	}
	m.eventLatency.Observe(latency.Seconds())
	m.processingTime.Observe(processingTime.Seconds())
}

// Handler returns the http.Handler to mount at GET /metrics.
func (m *StreamingMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
