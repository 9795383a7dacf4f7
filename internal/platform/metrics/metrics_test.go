package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementCreated()
	m.IncrementCreated()
	m.ObserveImportRow(OutcomeCreated)
	m.ObserveImportRow(OutcomeInvalid)
	m.ObserveImportRow(OutcomeInvalid)
	m.ObserveImportRejected("invalid_columns")
	m.ObserveDeletion(OutcomeFailed)

	if got := testutil.ToFloat64(m.RecipientsCreated); got != 2 {
		t.Errorf("expected 2 created, got %v", got)
	}
	if got := testutil.ToFloat64(m.ImportRows.WithLabelValues(OutcomeInvalid)); got != 2 {
		t.Errorf("expected 2 invalid rows, got %v", got)
	}
	if got := testutil.ToFloat64(m.ImportsRejected.WithLabelValues("invalid_columns")); got != 1 {
		t.Errorf("expected 1 rejected import, got %v", got)
	}
	if got := testutil.ToFloat64(m.Deletions.WithLabelValues(OutcomeFailed)); got != 1 {
		t.Errorf("expected 1 failed deletion, got %v", got)
	}
}

func TestMetrics_ObserveGateway(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveGateway("create", OutcomeSuccess, time.Now())

	if n := testutil.CollectAndCount(m.GatewayDuration); n != 1 {
		t.Errorf("expected 1 histogram series, got %d", n)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.IncrementCreated()
	m.ObserveImportRow(OutcomeCreated)
	m.ObserveImportRejected("x")
	m.ObserveDeletion(OutcomeDeleted)
	m.ObserveGateway("delete", OutcomeError, time.Now())
}
