package pool

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments the pool. Pass one to Init and register it with a
// prometheus registerer to export; left nil, instrumentation costs
// nothing.
type Metrics struct {
	open      prometheus.Gauge
	created   prometheus.Counter
	stolen    prometheus.Counter
	reaped    prometheus.Counter
	exhausted prometheus.Counter
}

// NewMetrics builds the pool collectors under the pqasync_pool namespace.
func NewMetrics() *Metrics {
	return &Metrics{
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pqasync",
			Subsystem: "pool",
			Name:      "open_connections",
			Help:      "Connections currently held by the pool.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pqasync",
			Subsystem: "pool",
			Name:      "connections_created_total",
			Help:      "Connections created since pool init.",
		}),
		stolen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pqasync",
			Subsystem: "pool",
			Name:      "connections_stolen_total",
			Help:      "Connections reassigned from an idle session to a waiting one.",
		}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pqasync",
			Subsystem: "pool",
			Name:      "connections_reaped_total",
			Help:      "Dead connections removed during acquisition.",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pqasync",
			Subsystem: "pool",
			Name:      "acquire_exhausted_total",
			Help:      "Acquisitions that timed out with the pool saturated.",
		}),
	}
}

// Register attaches every collector to the registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.open, m.created, m.stolen, m.reaped, m.exhausted} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
