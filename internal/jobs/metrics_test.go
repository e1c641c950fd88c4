package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("balances:reconcile").End(nil))
	err := m.Track("balances:reconcile").End(errors.New("boom"))
	require.EqualError(t, err, "boom")
	m.AddReconciled(4)

	require.Equal(t, 1.0, counterValue(t, reg, "ledger_jobs_total", map[string]string{"job": "balances:reconcile", "status": "success"}))
	require.Equal(t, 1.0, counterValue(t, reg, "ledger_jobs_total", map[string]string{"job": "balances:reconcile", "status": "failure"}))
	require.Equal(t, 1.0, counterValue(t, reg, "ledger_jobs_failures_total", map[string]string{"job": "balances:reconcile"}))
	require.Equal(t, 4.0, counterValue(t, reg, "ledger_balances_reconciled_total", nil))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NoError(t, m.Track("x").End(nil))
	m.AddReconciled(1)
}
