// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package metrics provides Prometheus instrumentation for the conversion
// tracking pipeline: dispatch decisions, queue publishes, delivery outcomes,
// consent denials and pixel snippet rendering.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracking pipeline metrics

	EventsTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversion_events_tracked_total",
			Help: "Total conversion events accepted by the tracker",
		},
		[]string{"kind", "path"}, // path: "queued", "direct"
	)

	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversion_events_skipped_total",
			Help: "Total conversion events skipped before dispatch",
		},
		[]string{"kind", "reason"}, // reason: "consent", "idempotent", "build_failure", "disabled"
	)

	// Delivery metrics

	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversion_delivery_attempts_total",
			Help: "Total Conversions API delivery attempts by outcome",
		},
		[]string{"kind", "outcome", "status_code"}, // outcome: "success", "failure"
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversion_delivery_duration_seconds",
			Help:    "Duration of Conversions API delivery attempts in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	DeliveryBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conversion_delivery_breaker_open",
			Help: "1 when the delivery circuit breaker is open, 0 otherwise",
		},
	)

	// Queue metrics

	QueuePublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversion_queue_publishes_total",
			Help: "Total jobs published to the durable delivery queue",
		},
		[]string{"kind"},
	)

	QueueRedeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversion_queue_redeliveries_total",
			Help: "Total queue jobs redelivered after a failed attempt",
		},
	)

	// Pixel metrics

	SnippetRenders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixel_snippet_renders_total",
			Help: "Total pixel snippet/data renders by page type",
		},
		[]string{"page_type"},
	)

	ScriptCacheRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixel_script_cache_refreshes_total",
			Help: "Total remote base-code refresh attempts by result",
		},
		[]string{"result"}, // "ok", "fetch_error", "validation_failed"
	)

	// API metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordDelivery records one delivery attempt.
func RecordDelivery(kind string, success bool, statusCode int, duration time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	code := "none"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	DeliveryAttempts.WithLabelValues(kind, outcome, code).Inc()
	DeliveryDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordAPIRequest records one API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
