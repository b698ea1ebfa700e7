package observability

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"invokeledger/core/types"
)

// EventMetrics counts committed settlement events and the value they carry.
type EventMetrics struct {
	committed *prometheus.CounterVec
	settled   *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *EventMetrics
)

// Events returns the metrics registry tracking committed settlement events.
func Events() *EventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &EventMetrics{
			committed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "invokeledger",
				Subsystem: "events",
				Name:      "committed_total",
				Help:      "Committed settlement events by originating module and event type.",
			}, []string{"module", "type"}),
			settled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "invokeledger",
				Subsystem: "events",
				Name:      "value_total",
				Help:      "Sum of the amount attribute of committed events, in base units.",
			}, []string{"module", "type"}),
		}
		prometheus.MustRegister(eventRegistry.committed, eventRegistry.settled)
	})
	return eventRegistry
}

// RecordCommitted counts evt against module. Events without a positive
// decimal amount only bump the event counter.
func (m *EventMetrics) RecordCommitted(module string, evt *types.Event) {
	if m == nil || evt == nil {
		return
	}
	mod, typ := eventLabel(module), eventLabel(evt.Type)
	m.committed.WithLabelValues(mod, typ).Inc()
	amount, ok := new(big.Int).SetString(evt.Attr("amount"), 10)
	if !ok || amount.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.settled.WithLabelValues(mod, typ).Add(value)
}

func eventLabel(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return "unknown"
	}
	return v
}
