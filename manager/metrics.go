package manager

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "clamm"

// Metrics holds the collectors of one Manager.
type Metrics struct {
	operations   *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	ticksCrossed prometheus.Counter
	protocolFees *prometheus.CounterVec
	poolsTotal   prometheus.Gauge
}

// NewMetrics creates the manager collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "manager",
			Name:      "operations_total",
			Help:      "Mutating manager operations by kind and result.",
		}, []string{"op", "result"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "manager",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in a mutating manager operation, hooks and settlement included.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}, []string{"op"}),
		ticksCrossed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "manager",
			Name:      "ticks_crossed_total",
			Help:      "Initialized ticks crossed by committed swaps.",
		}),
		protocolFees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "manager",
			Name:      "protocol_fee_collections_total",
			Help:      "Protocol fee collections by currency.",
		}, []string{"currency"}),
		poolsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "manager",
			Name:      "pools",
			Help:      "Initialized pools.",
		}),
	}
	reg.MustRegister(m.operations, m.opDuration, m.ticksCrossed, m.protocolFees, m.poolsTotal)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// track starts timing op and returns the function that records its outcome.
func (m *Metrics) track(op string) func(err error) {
	timer := prometheus.NewTimer(m.opDuration.WithLabelValues(op))
	return func(err error) {
		timer.ObserveDuration()
		m.operations.WithLabelValues(op, result(err)).Inc()
	}
}
