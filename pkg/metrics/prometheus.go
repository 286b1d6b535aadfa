package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cyclesTotal *prometheus.CounterVec
	rowsTotal   *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastClose   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphapull_pair_cycles_total",
				Help: "Pair cycles by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		rowsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphapull_rows_total",
				Help: "Observation rows fetched and appended per source and symbol",
			},
			[]string{"source", "symbol", "kind"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphapull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastClose: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alphapull_last_close",
				Help: "Last ingested close price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alphapull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordCycle records one pair cycle result.
func (r *Recorder) RecordCycle(source, outcome string) {
	r.cyclesTotal.WithLabelValues(source, outcome).Inc()
}

// RecordRows records fetched and appended row counts for a pair.
func (r *Recorder) RecordRows(source, symbol string, fetched, appended int) {
	r.rowsTotal.WithLabelValues(source, symbol, "fetched").Add(float64(fetched))
	r.rowsTotal.WithLabelValues(source, symbol, "appended").Add(float64(appended))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordLastClose records the last ingested close for a symbol.
func (r *Recorder) RecordLastClose(symbol string, price float64) {
	r.lastClose.WithLabelValues(symbol).Set(price)
}
