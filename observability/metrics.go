package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	settlementMetricsOnce sync.Once
	settlementRegistry    *SettlementMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "invokeledger",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "invokeledger",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "invokeledger",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "invokeledger",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// SettlementMetrics captures per-operation activity of the settlement module.
type SettlementMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	reentrant  *prometheus.CounterVec
	reverts    *prometheus.CounterVec
}

// Settlement returns the singleton settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "invokeledger",
				Subsystem: "settlement",
				Name:      "operations_total",
				Help:      "Count of settlement operations segmented by module, operation and outcome.",
			}, []string{"module", "operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "invokeledger",
				Subsystem: "settlement",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for top-level settlement operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "operation"}),
			reentrant: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "invokeledger",
				Subsystem: "settlement",
				Name:      "reentrant_calls_total",
				Help:      "Count of operations entered from within another operation's transfer.",
			}, []string{"module", "operation"}),
			reverts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "invokeledger",
				Subsystem: "settlement",
				Name:      "reverts_total",
				Help:      "Count of operations rolled back segmented by failure reason.",
			}, []string{"module", "operation", "reason"}),
		}
		prometheus.MustRegister(
			settlementRegistry.operations,
			settlementRegistry.latency,
			settlementRegistry.reentrant,
			settlementRegistry.reverts,
		)
	})
	return settlementRegistry
}

// Observe records the outcome of a settlement operation. Latency is only
// tracked for top-level calls.
func (m *SettlementMetrics) Observe(module, operation string, reentrant bool, err error, duration time.Duration) {
	if m == nil {
		return
	}
	module = normalizeLabel(module)
	operation = normalizeLabel(operation)
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.reverts.WithLabelValues(module, operation, ErrorReason(err)).Inc()
	}
	m.operations.WithLabelValues(module, operation, outcome).Inc()
	if reentrant {
		m.reentrant.WithLabelValues(module, operation).Inc()
		return
	}
	m.latency.WithLabelValues(module, operation).Observe(duration.Seconds())
}

// ErrorReason maps a sentinel error message such as "tips: no pledge to
// withdraw" to a low-cardinality label value.
func ErrorReason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 && idx < len(msg)-2 {
		msg = msg[idx+2:]
	}
	if idx := strings.Index(msg, ":"); idx >= 0 {
		msg = msg[:idx]
	}
	msg = strings.ToLower(strings.TrimSpace(msg))
	msg = strings.ReplaceAll(msg, " ", "_")
	if len(msg) > 48 {
		msg = msg[:48]
	}
	if msg == "" {
		return "unknown"
	}
	return msg
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
