package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every pipeline metric
const Namespace = "tensile"

// Metrics contains the pipeline-level metrics. Every Record method is a
// no-op on a nil *Metrics so components can run without a registry.
type Metrics struct {
	// Ingest
	RecordsIngested *prometheus.CounterVec
	BytesIngested   *prometheus.CounterVec
	ParseErrors     *prometheus.CounterVec
	IngestActive    prometheus.Gauge

	// Series
	SamplesObserved prometheus.Counter
	Sessions        prometheus.Counter

	// Codec and simulation
	Saturations      *prometheus.CounterVec
	RecordsSimulated prometheus.Counter

	// Analysis
	ExtractionDuration prometheus.Histogram

	// NATS
	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		RecordsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "ingest",
				Name:      "records_total",
				Help:      "Wire records parsed and observed",
			},
			[]string{"transport"},
		),

		BytesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "ingest",
				Name:      "bytes_total",
				Help:      "Bytes read from the transport",
			},
			[]string{"transport"},
		),

		ParseErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "ingest",
				Name:      "parse_errors_total",
				Help:      "Malformed wire records that ended an ingest task",
			},
			[]string{"transport"},
		),

		IngestActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "ingest",
				Name:      "active",
				Help:      "Ingest task running (0=stopped, 1=running)",
			},
		),

		SamplesObserved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "series",
				Name:      "samples_total",
				Help:      "Samples appended to a collecting series",
			},
		),

		Sessions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "series",
				Name:      "sessions_total",
				Help:      "Collection sessions begun",
			},
		),

		Saturations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "codec",
				Name:      "saturations_total",
				Help:      "Encoded samples clipped to the ADC range",
			},
			[]string{"channel"},
		),

		RecordsSimulated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "simulate",
				Name:      "records_total",
				Help:      "Wire records written by the simulator",
			},
		),

		ExtractionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "analysis",
				Name:      "extraction_duration_seconds",
				Help:      "Property extraction duration in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RecordsIngested,
		m.BytesIngested,
		m.ParseErrors,
		m.IngestActive,
		m.SamplesObserved,
		m.Sessions,
		m.Saturations,
		m.RecordsSimulated,
		m.ExtractionDuration,
		m.NATSConnected,
		m.NATSReconnects,
		m.NATSCircuitBreaker,
	}
}

// RecordIngest counts one observed record of n bytes
func (m *Metrics) RecordIngest(transport string, n int) {
	if m == nil {
		return
	}
	m.RecordsIngested.WithLabelValues(transport).Inc()
	m.BytesIngested.WithLabelValues(transport).Add(float64(n))
}

// RecordParseError counts a malformed record
func (m *Metrics) RecordParseError(transport string) {
	if m == nil {
		return
	}
	m.ParseErrors.WithLabelValues(transport).Inc()
}

// RecordIngestActive updates the ingest running gauge
func (m *Metrics) RecordIngestActive(active bool) {
	if m == nil {
		return
	}
	m.IngestActive.Set(boolToFloat(active))
}

// RecordSample counts one observed sample
func (m *Metrics) RecordSample() {
	if m == nil {
		return
	}
	m.SamplesObserved.Inc()
}

// RecordSession counts a new collection session
func (m *Metrics) RecordSession() {
	if m == nil {
		return
	}
	m.Sessions.Inc()
}

// RecordSaturation counts a clipped sample on a channel
func (m *Metrics) RecordSaturation(channel string) {
	if m == nil {
		return
	}
	m.Saturations.WithLabelValues(channel).Inc()
}

// RecordSimulated counts one record written by the simulator
func (m *Metrics) RecordSimulated() {
	if m == nil {
		return
	}
	m.RecordsSimulated.Inc()
}

// RecordExtraction records how long a property extraction took
func (m *Metrics) RecordExtraction(d time.Duration) {
	if m == nil {
		return
	}
	m.ExtractionDuration.Observe(d.Seconds())
}

// RecordNATSStatus updates NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	if m == nil {
		return
	}
	m.NATSConnected.Set(boolToFloat(connected))
}

// RecordNATSReconnect increments reconnection counter
func (m *Metrics) RecordNATSReconnect() {
	if m == nil {
		return
	}
	m.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (m *Metrics) RecordCircuitBreakerState(state int) {
	if m == nil {
		return
	}
	m.NATSCircuitBreaker.Set(float64(state))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
