package bulk

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the channel's Prometheus collectors.
type Metrics struct {
	unitsSubmitted  prometheus.Counter
	unitsAcked      prometheus.Counter
	unitsFailed     prometheus.Counter
	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	queuedChunks    prometheus.Gauge
	bufferedBytes   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		unitsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rowbulk_units_submitted_total",
			Help: "Total number of documents handed to the bulk channel",
		}),
		unitsAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rowbulk_units_acknowledged_total",
			Help: "Total number of documents acknowledged by the backend",
		}),
		unitsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rowbulk_units_failed_total",
			Help: "Total number of documents rejected or not acknowledged",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rowbulk_bulk_requests_total",
			Help: "Bulk requests sent, by outcome",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rowbulk_bulk_request_duration_seconds",
			Help:    "Latency of bulk requests",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),
		queuedChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rowbulk_queued_chunks",
			Help: "Flushed chunks waiting for a worker",
		}),
		bufferedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rowbulk_buffered_bytes",
			Help: "Encoded document bytes held locally",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.unitsSubmitted,
			m.unitsAcked,
			m.unitsFailed,
			m.requests,
			m.requestDuration,
			m.queuedChunks,
			m.bufferedBytes,
		)
	}
	return m
}
