// Package observability exposes the prometheus counters the core maintains.
// Every method is nil-receiver safe so library code can carry an optional
// *Metrics without guarding each call site.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	decisionsTotal      *prometheus.CounterVec
	recordsDropped      *prometheus.CounterVec
	normalizeFallbacks  prometheus.Counter
	sourceErrors        *prometheus.CounterVec
	historyAppendErrors prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watering_decisions_total",
			Help: "Watering decisions taken, by invocation kind and outcome.",
		}, []string{"kind", "decision"}),
		recordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "series_records_dropped_total",
			Help: "Historical records dropped during merge, by cause.",
		}, []string{"cause"}),
		normalizeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timestamp_normalize_fallbacks_total",
			Help: "Timestamp resolutions that fell back past the authoritative field.",
		}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "source_read_errors_total",
			Help: "Failed source reads, by source.",
		}, []string{"source"}),
		historyAppendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decision_history_append_errors_total",
			Help: "Failed appends to the watering analysis history.",
		}),
	}

	prometheus.MustRegister(
		m.decisionsTotal,
		m.recordsDropped,
		m.normalizeFallbacks,
		m.sourceErrors,
		m.historyAppendErrors,
	)
	return m
}

// Handler serves the default prometheus registry.
func Handler() http.Handler { return promhttp.Handler() }

func (m *Metrics) Decision(kind string, water bool) {
	if m == nil {
		return
	}
	outcome := "no_water"
	if water {
		outcome = "water"
	}
	m.decisionsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordDropped(cause string) {
	if m == nil {
		return
	}
	m.recordsDropped.WithLabelValues(cause).Inc()
}

func (m *Metrics) NormalizeFallback() {
	if m == nil {
		return
	}
	m.normalizeFallbacks.Inc()
}

func (m *Metrics) SourceError(source string) {
	if m == nil {
		return
	}
	m.sourceErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) HistoryAppendError() {
	if m == nil {
		return
	}
	m.historyAppendErrors.Inc()
}
