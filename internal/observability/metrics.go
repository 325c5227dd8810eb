// Package observability holds the Prometheus metrics and tracing setup.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qabot"

// Metrics are the counters exported on /metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Labels: source (exact_manual, fuzzy_manual, external)
	Resolutions *prometheus.CounterVec
	// Labels: backend
	ProviderErrors *prometheus.CounterVec
	// Labels: value (yes, no)
	Feedback *prometheus.CounterVec
	// Rows upserted into the ledger table
	LedgerRowsWritten prometheus.Counter
	// Labels: table
	SyncFailures *prometheus.CounterVec
}

// NewMetrics registers every metric on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Answered questions by answer source.",
		}, []string{"source"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Failed external model calls.",
		}, []string{"backend"}),
		Feedback: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Helpfulness ratings attached to answers.",
		}, []string{"value"}),
		LedgerRowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_rows_written_total",
			Help:      "Ledger rows written by persist.",
		}),
		SyncFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failures_total",
			Help:      "Failed remote uploads by table.",
		}, []string{"table"}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveResolution(source string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveProviderError(backend string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(backend).Inc()
}

func (m *Metrics) ObserveFeedback(value string) {
	if m == nil {
		return
	}
	m.Feedback.WithLabelValues(value).Inc()
}

func (m *Metrics) ObserveLedgerRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LedgerRowsWritten.Add(float64(n))
}

func (m *Metrics) ObserveSyncFailure(table string) {
	if m == nil {
		return
	}
	m.SyncFailures.WithLabelValues(table).Inc()
}
