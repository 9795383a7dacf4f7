package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the collectors below.
const (
	OutcomeCreated       = "created"
	OutcomeAlreadyExists = "already_exists"
	OutcomeInvalid       = "invalid"
	OutcomeDeleted       = "deleted"
	OutcomeFailed        = "failed"
	OutcomeSuccess       = "success"
	OutcomeError         = "error"
)

// Metrics tracks the roster workflows: record creation, bulk import rows,
// deletions and calls to the subscription service.
type Metrics struct {
	RecipientsCreated prometheus.Counter
	ImportRows        *prometheus.CounterVec
	ImportsRejected   *prometheus.CounterVec
	Deletions         *prometheus.CounterVec
	GatewayDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Passing
// prometheus.NewRegistry() keeps tests isolated from the global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecipientsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hans_care_recipients_created_total",
			Help: "Total number of care recipients persisted",
		}),
		ImportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hans_import_rows_total",
			Help: "Bulk import rows processed, by outcome",
		}, []string{"outcome"}),
		ImportsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hans_imports_rejected_total",
			Help: "Bulk imports aborted before row processing, by reason",
		}, []string{"reason"}),
		Deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hans_care_recipient_deletions_total",
			Help: "Care recipient deletion attempts, by outcome",
		}, []string{"outcome"}),
		GatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hans_management_api_request_duration_seconds",
			Help:    "Latency of subscription service calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.RecipientsCreated, m.ImportRows, m.ImportsRejected, m.Deletions, m.GatewayDuration)
	}
	return m
}

// IncrementCreated records a persisted care recipient.
func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.RecipientsCreated.Inc()
}

// ObserveImportRow records the outcome of one bulk import row.
func (m *Metrics) ObserveImportRow(outcome string) {
	if m == nil {
		return
	}
	m.ImportRows.WithLabelValues(outcome).Inc()
}

// ObserveImportRejected records a bulk import aborted for a structural reason.
func (m *Metrics) ObserveImportRejected(reason string) {
	if m == nil {
		return
	}
	m.ImportsRejected.WithLabelValues(reason).Inc()
}

// ObserveDeletion records the outcome of one deletion attempt.
func (m *Metrics) ObserveDeletion(outcome string) {
	if m == nil {
		return
	}
	m.Deletions.WithLabelValues(outcome).Inc()
}

// ObserveGateway records the duration of a subscription service call.
// Call with time.Now() taken at the start of the call.
func (m *Metrics) ObserveGateway(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.GatewayDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}
