// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

// Package metrics provides Prometheus instrumentation for the gateway:
// socket connection and room gauges, event delivery counters, ingress HTTP
// latency, external store call performance and circuit breaker state.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Socket connection metrics

	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_connections_active",
			Help: "Current number of live socket connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_rooms_active",
			Help: "Current number of rooms with at least one member",
		},
	)

	// Event fan-out metrics

	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_events_delivered_total",
			Help: "Total events handed to connection send buffers",
		},
		[]string{"event"},
	)

	DeliveriesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_deliveries_skipped_total",
			Help: "Sends skipped because the connection buffer was full or closing",
		},
	)

	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_client_events_total",
			Help: "Total events received from connected clients",
		},
		[]string{"event"},
	)

	// Ingress HTTP metrics

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_http_requests_active",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	EmitRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_emit_requests_total",
			Help: "Total emit bridge requests by outcome",
		},
		[]string{"outcome"}, // "delivered", "invalid", "unauthorized"
	)

	// External store client metrics

	StoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_store_request_duration_seconds",
			Help:    "Duration of calls to the web application store API",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_store_request_errors_total",
			Help: "Total failed calls to the web application store API",
		},
		[]string{"operation"},
	)

	// Circuit breaker metrics (store client)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_circuit_breaker_requests_total",
			Help: "Total requests through the circuit breaker by outcome",
		},
		[]string{"name", "outcome"}, // "success", "failure", "rejected"
	)
)

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordStoreRequest records one completed store call.
func RecordStoreRequest(operation string, duration time.Duration, err error) {
	StoreRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreRequestErrors.WithLabelValues(operation).Inc()
	}
}
