package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/obra-ledger/obra-ledger/internal/jobs"
)

func TestLedgerJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Reminder sweeps finish fast and mostly succeed.
	for i := 0; i < 60; i++ {
		tracker := metrics.Track("periods:ending")
		time.Sleep(12 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending reminder tracker: %v", err)
		}
	}

	// Reconcile runs are slower but stay within 2s.
	for i := 0; i < 15; i++ {
		tracker := metrics.Track("balances:reconcile")
		time.Sleep(40 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending reconcile tracker: %v", err)
		}
	}

	// A few failed sweeps must still be counted.
	for i := 0; i < 3; i++ {
		tracker := metrics.Track("periods:ending")
		time.Sleep(15 * time.Millisecond)
		if err := tracker.End(errors.New("notify enqueue: timeout")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "ledger_jobs_total", map[string]string{"job": "periods:ending", "status": "success"})
	failure := metricValue(t, families, "ledger_jobs_total", map[string]string{"job": "periods:ending", "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no reminder executions recorded")
	}
	ratio := success / (success + failure)
	if ratio < 0.9 {
		t.Fatalf("reminder success ratio too low: %f", ratio)
	}

	reconcileDuration := histogramMean(t, families, "ledger_job_duration_seconds", map[string]string{"job": "balances:reconcile"})
	if reconcileDuration > 2.0 {
		t.Fatalf("reconcile duration above budget: %f", reconcileDuration)
	}

	reminderDuration := histogramMean(t, families, "ledger_job_duration_seconds", map[string]string{"job": "periods:ending"})
	if reminderDuration > 0.5 {
		t.Fatalf("reminder duration above budget: %f", reminderDuration)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
