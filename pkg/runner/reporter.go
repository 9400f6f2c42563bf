package runner

import (
	"context"

	"github.com/clustercheck/clustercheck/pkg/observability"
)

const component = "check-cluster"

// Reporter consumes run events and metrics for logging or aggregation.
type Reporter interface {
	RecordEvent(context.Context, observability.Event)
	RecordMetric(observability.Metric)
}

// NoopReporter discards all events and metrics.
type NoopReporter struct{}

// RecordEvent implements Reporter.
func (NoopReporter) RecordEvent(context.Context, observability.Event) {}

// RecordMetric implements Reporter.
func (NoopReporter) RecordMetric(observability.Metric) {}

// StructuredReporter forwards events to a logger and metrics to a collector,
// stamping both with the aggregate check they belong to. Values already set
// by the caller win.
type StructuredReporter struct {
	node    string
	cluster string
	check   string
	logger  observability.Logger
	metrics observability.MetricsCollector
}

// NewStructuredReporter builds a reporter for one (cluster, check) pair
// evaluated from nodeName.
func NewStructuredReporter(nodeName, cluster, check string, logger observability.Logger, metrics observability.MetricsCollector) *StructuredReporter {
	return &StructuredReporter{
		node:    nodeName,
		cluster: cluster,
		check:   check,
		logger:  logger,
		metrics: metrics,
	}
}

// RecordEvent implements Reporter.
func (r *StructuredReporter) RecordEvent(ctx context.Context, event observability.Event) {
	if r == nil || r.logger == nil {
		return
	}
	stamped := event.Clone()
	if stamped.Node == "" {
		stamped.Node = r.node
	}
	if stamped.Component == "" {
		stamped.Component = component
	}
	if stamped.Fields == nil {
		stamped.Fields = make(map[string]interface{}, 2)
	}
	for key, value := range r.scope() {
		if _, ok := stamped.Fields[key]; !ok {
			stamped.Fields[key] = value
		}
	}
	_ = r.logger.Log(ctx, stamped)
}

// RecordMetric implements Reporter.
func (r *StructuredReporter) RecordMetric(metric observability.Metric) {
	if r == nil || r.metrics == nil {
		return
	}
	labels := make(map[string]string, len(metric.Labels)+2)
	for key, value := range r.scope() {
		labels[key] = value
	}
	for key, value := range metric.Labels {
		labels[key] = value
	}
	metric.Labels = labels
	r.metrics.Collect(metric)
}

func (r *StructuredReporter) scope() map[string]string {
	scope := make(map[string]string, 2)
	if r.cluster != "" {
		scope["cluster"] = r.cluster
	}
	if r.check != "" {
		scope["check"] = r.check
	}
	return scope
}

var _ Reporter = NoopReporter{}
var _ Reporter = (*StructuredReporter)(nil)
