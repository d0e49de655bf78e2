package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the engine's instruments. Recording against the global
// provider is a no-op until the host installs one.
type metrics struct {
	stateWrites     metric.Int64Counter
	batches         metric.Int64Counter
	affectedNodes   metric.Int64Histogram
	resolveDuration metric.Float64Histogram
	actionErrors    metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("github.com/go-loom/loom/pkg/engine")

	m := &metrics{}
	m.stateWrites, _ = meter.Int64Counter("loom.state.writes",
		metric.WithDescription("State paths dirtied per flush."))
	m.batches, _ = meter.Int64Counter("loom.update.batches",
		metric.WithDescription("Update batches delivered to the adapter."))
	m.affectedNodes, _ = meter.Int64Histogram("loom.update.affected_nodes",
		metric.WithDescription("Nodes affected per update batch."))
	m.resolveDuration, _ = meter.Float64Histogram("loom.resolve.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Full document resolution duration."))
	m.actionErrors, _ = meter.Int64Counter("loom.action.errors",
		metric.WithDescription("Failed action dispatches."))
	return m
}

func (m *metrics) recordBatch(dirty, affected int) {
	ctx := context.Background()
	m.stateWrites.Add(ctx, int64(dirty))
	m.batches.Add(ctx, 1)
	m.affectedNodes.Record(ctx, int64(affected))
}

func (m *metrics) recordResolve(d time.Duration) {
	m.resolveDuration.Record(context.Background(), d.Seconds())
}

func (m *metrics) recordActionError(kind string) {
	m.actionErrors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("action.kind", kind)))
}
