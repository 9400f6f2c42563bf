package runner

import (
	"context"
	"testing"

	"github.com/clustercheck/clustercheck/pkg/observability"
)

func TestStructuredReporterStampsEvents(t *testing.T) {
	var got []observability.Event
	logger := observability.LoggerFunc(func(_ context.Context, event observability.Event) error {
		got = append(got, event)
		return nil
	})
	rep := NewStructuredReporter("node-a", "prod", "disk", logger, nil)

	original := observability.Event{Event: "verdict", Fields: map[string]interface{}{"status": "OK"}}
	rep.RecordEvent(context.Background(), original)
	rep.RecordEvent(context.Background(), observability.Event{Event: "lock_held", Node: "node-b", Fields: map[string]interface{}{"check": "memory"}})
	rep.RecordEvent(context.Background(), observability.Event{Event: "bare"})

	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	first := got[0]
	if first.Node != "node-a" || first.Component != "check-cluster" {
		t.Fatalf("expected node and component defaults, got %+v", first)
	}
	if first.Fields["cluster"] != "prod" || first.Fields["check"] != "disk" || first.Fields["status"] != "OK" {
		t.Fatalf("unexpected fields %v", first.Fields)
	}
	if _, ok := original.Fields["cluster"]; ok {
		t.Fatal("expected the caller's fields map to be left untouched")
	}
	if got[1].Node != "node-b" || got[1].Fields["check"] != "memory" {
		t.Fatalf("expected caller values to win, got %+v", got[1])
	}
	if got[2].Fields["cluster"] != "prod" {
		t.Fatalf("expected scope on events without fields, got %+v", got[2])
	}
}

func TestStructuredReporterLabelsMetrics(t *testing.T) {
	var got []observability.Metric
	collector := observability.MetricsCollectorFunc(func(m observability.Metric) { got = append(got, m) })
	rep := NewStructuredReporter("node-a", "prod", "disk", nil, collector)

	rep.RecordMetric(observability.Metric{Name: "verdicts_total", Labels: map[string]string{"status": "CRITICAL"}})
	rep.RecordMetric(observability.Metric{Name: "run_outcomes_total", Labels: map[string]string{"check": "memory"}})

	if len(got) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(got))
	}
	if got[0].Labels["cluster"] != "prod" || got[0].Labels["check"] != "disk" || got[0].Labels["status"] != "CRITICAL" {
		t.Fatalf("unexpected labels %v", got[0].Labels)
	}
	if got[1].Labels["check"] != "memory" {
		t.Fatalf("expected metric labels to win, got %v", got[1].Labels)
	}
}

func TestStructuredReporterWithoutSinks(t *testing.T) {
	rep := NewStructuredReporter("node-a", "prod", "disk", nil, nil)
	rep.RecordEvent(context.Background(), observability.Event{Event: "verdict"})
	rep.RecordMetric(observability.Metric{Name: "verdicts_total"})

	var nilRep *StructuredReporter
	nilRep.RecordEvent(context.Background(), observability.Event{Event: "verdict"})
	nilRep.RecordMetric(observability.Metric{Name: "verdicts_total"})
}
