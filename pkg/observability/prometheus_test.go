package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusCollectorCounter(t *testing.T) {
	collector := NewPrometheusCollector()
	collector.Collect(Metric{
		Name:        "run_outcomes_total",
		Type:        MetricCounter,
		Value:       2,
		Labels:      map[string]string{"outcome": "ran"},
		Description: "Number of cluster check invocations by outcome",
	})
	collector.Collect(Metric{
		Name:   "run_outcomes_total",
		Type:   MetricCounter,
		Value:  1,
		Labels: map[string]string{"outcome": "ran"},
	})

	mfs, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	metric := findMetric(t, mfs, "check_cluster_run_outcomes_total")
	if len(metric.Metric) != 1 {
		t.Fatalf("expected single metric sample, got %d", len(metric.Metric))
	}
	sample := metric.Metric[0]
	if got := sample.GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected counter value 3, got %v", got)
	}
	labels := sample.GetLabel()
	if len(labels) != 1 || labels[0].GetName() != "outcome" || labels[0].GetValue() != "ran" {
		t.Fatalf("unexpected labels: %+v", labels)
	}
}

func TestPrometheusCollectorGauge(t *testing.T) {
	collector := NewPrometheusCollector()
	for _, v := range []float64{40, 75} {
		collector.Collect(Metric{
			Name:   "ok_percent",
			Type:   MetricGauge,
			Value:  v,
			Labels: map[string]string{"check": "disk"},
		})
	}

	mfs, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	metric := findMetric(t, mfs, "check_cluster_ok_percent")
	if got := metric.Metric[0].GetGauge().GetValue(); got != 75 {
		t.Fatalf("expected gauge to hold the last value 75, got %v", got)
	}
}

func TestPrometheusCollectorHistogram(t *testing.T) {
	collector := NewPrometheusCollector()
	collector.Collect(Metric{
		Name:        "aggregation_seconds",
		Type:        MetricHistogram,
		Value:       1.5,
		Labels:      map[string]string{"check": "disk", "result": "ok"},
		Description: "aggregation duration",
		Unit:        "seconds",
	})
	collector.Collect(Metric{
		Name:   "aggregation_seconds",
		Type:   MetricHistogram,
		Value:  2.5,
		Labels: map[string]string{"check": "disk", "result": "ok"},
	})

	mfs, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	metric := findMetric(t, mfs, "check_cluster_aggregation_seconds")
	if len(metric.Metric) != 1 {
		t.Fatalf("expected single histogram sample, got %d", len(metric.Metric))
	}
	mfSample := metric.Metric[0]
	sample := mfSample.GetHistogram()
	if got := sample.GetSampleCount(); got != 2 {
		t.Fatalf("expected sample count 2, got %v", got)
	}
	if got := sample.GetSampleSum(); got < 4.0 || got > 4.1 {
		t.Fatalf("expected sum close to 4.0, got %v", got)
	}
	var foundUnit bool
	for _, label := range mfSample.GetLabel() {
		if label.GetName() == "unit" && label.GetValue() == "seconds" {
			foundUnit = true
		}
	}
	if !foundUnit {
		t.Fatalf("expected unit label to be recorded, got %+v", mfSample.GetLabel())
	}
}

func TestPrometheusCollectorIgnoresMismatchedLabels(t *testing.T) {
	collector := NewPrometheusCollector()
	collector.Collect(Metric{
		Name:   "lock_attempts_total",
		Type:   MetricCounter,
		Value:  1,
		Labels: map[string]string{"result": "acquired"},
	})
	// A different label set for the same name is dropped.
	collector.Collect(Metric{
		Name:   "lock_attempts_total",
		Type:   MetricCounter,
		Value:  1,
		Labels: map[string]string{"result": "acquired", "node": "node-a"},
	})

	mfs, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	metric := findMetric(t, mfs, "check_cluster_lock_attempts_total")
	if len(metric.Metric) != 1 {
		t.Fatalf("expected single metric after mismatch attempt, got %d", len(metric.Metric))
	}
	if got := metric.Metric[0].GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1 after ignoring mismatched labels, got %v", got)
	}
}

func TestPrometheusCollectorWriteTextfile(t *testing.T) {
	collector := NewPrometheusCollector()
	collector.Collect(Metric{
		Name:   "verdicts_total",
		Type:   MetricCounter,
		Value:  1,
		Labels: map[string]string{"status": "CRITICAL"},
	})

	path := filepath.Join(t.TempDir(), "check_cluster.prom")
	if err := collector.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(contents), `check_cluster_verdicts_total{status="CRITICAL"} 1`) {
		t.Fatalf("unexpected textfile contents:\n%s", contents)
	}

	if err := collector.WriteTextfile(" "); err == nil {
		t.Fatal("expected error for an empty path")
	}
}

// findMetric searches metric families by name.
func findMetric(t *testing.T, mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}
