package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/7-Dany/Stress-Strain/metric"
)

// bufferMetrics mirrors Statistics into Prometheus. Methods are no-ops on nil.
type bufferMetrics struct {
	writes      prometheus.Counter
	reads       prometheus.Counter
	drops       prometheus.Counter
	utilization prometheus.Gauge
}

func newBufferMetrics(registry metric.MetricsRegistrar, prefix string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"component": prefix}
	m := &bufferMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "writes_total",
			ConstLabels: labels,
			Help:        "Total number of buffer writes",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "reads_total",
			ConstLabels: labels,
			Help:        "Total number of buffer reads",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "drops_total",
			ConstLabels: labels,
			Help:        "Items dropped due to overflow",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "utilization",
			ConstLabels: labels,
			Help:        "Buffer utilization (0.0 to 1.0)",
		}),
	}

	if err := registry.RegisterCounter(prefix, "buffer_writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "buffer_reads", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "buffer_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "buffer_utilization", m.utilization); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	if m == nil {
		return
	}
	m.writes.Inc()
	m.utilization.Set(float64(size) / float64(capacity))
}

func (m *bufferMetrics) recordRead(size, capacity int) {
	if m == nil {
		return
	}
	m.reads.Inc()
	m.utilization.Set(float64(size) / float64(capacity))
}

func (m *bufferMetrics) recordDrop() {
	if m == nil {
		return
	}
	m.drops.Inc()
}
