// Package metrics holds the prometheus collectors shared across the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	// Upstream adapter calls, labelled by outcome: ok, error, panic.
	SourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelhub_source_requests_total",
			Help: "Source adapter calls by outcome",
		},
		[]string{"source", "op", "outcome"},
	)

	SourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelhub_source_request_duration_seconds",
			Help:    "Source adapter call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"source", "op"},
	)

	SourceItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelhub_source_items_total",
			Help: "Listings returned by source adapters",
		},
		[]string{"source", "op"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelhub_circuit_breaker_state",
			Help: "Upstream circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelhub_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelhub_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// BreakerStateValue maps a breaker state onto the gauge value.
func BreakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
