// Package metrics declares the process-wide Prometheus collectors the
// control plane exports at /metrics.
//
// Naming convention: namespace_subsystem_name
//   - namespace: sfu_controlplane
//   - subsystem: signaling, room, webrtc, circuit_breaker, rate_limit, redis
//   - name: specific metric (connections_active, events_total, ...)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfu_controlplane",
		Subsystem: "signaling",
		Name:      "connections_active",
		Help:      "Current number of active signaling WebSocket connections",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfu_controlplane",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sfu_controlplane",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	IntentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfu_controlplane",
		Subsystem: "signaling",
		Name:      "intents_total",
		Help:      "Total signaling intents processed",
	}, []string{"intent_type", "status"})

	IntentProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sfu_controlplane",
		Subsystem: "signaling",
		Name:      "intent_processing_seconds",
		Help:      "Time spent handling a signaling intent",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"intent_type"})

	WebrtcConnectionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfu_controlplane",
		Subsystem: "webrtc",
		Name:      "connection_attempts_total",
		Help:      "Total media-engine transport connection attempts",
	}, []string{"status"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sfu_controlplane",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 0.5: Half-Open, 1: Open)",
	}, []string{"service"})

	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfu_controlplane",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfu_controlplane",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfu_controlplane",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	StateStoreOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfu_controlplane",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of state store operations",
	}, []string{"operation", "status"})

	StateStoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sfu_controlplane",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of state store operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
