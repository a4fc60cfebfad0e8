package differ

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the differ collectors.
type Metrics struct {
	diffDuration prometheus.Histogram
	poolChanges  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clamm",
			Subsystem: "differ",
			Name:      "diff_duration_seconds",
			Help:      "Time spent diffing two published states.",
			Buckets:   prometheus.DefBuckets,
		}),
		poolChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clamm",
			Subsystem: "differ",
			Name:      "pool_changes_total",
			Help:      "Pool additions, updates and deletions found by the differ.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.diffDuration, m.poolChanges)
	return m
}
