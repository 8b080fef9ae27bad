package lineage

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/forgeai/forge/internal/lineage")

var (
	meter             = otel.Meter("github.com/forgeai/forge/internal/lineage")
	eventsRecorded, _ = meter.Int64Counter("forge_lineage_events_recorded_total")
	eventDuration, _  = meter.Float64Histogram("forge_lineage_event_duration_ms")
)

// emitSpan opens and immediately closes a span spanning the event's
// started_at/finished_at window, so the lineage forest has an equivalent,
// inspectable trace tree. This is purely additive: the JSON event file
// remains the authoritative record, and span/metric failures here are not
// surfaced to callers.
func emitSpan(ctx context.Context, event Event) {
	_, span := tracer.Start(ctx, event.AgentKind, trace.WithTimestamp(event.StartedAt))
	defer span.End(trace.WithTimestamp(event.FinishedAt))

	span.SetAttributes(
		attribute.String("workflow_run_id", event.WorkflowRunID),
		attribute.Int("step", event.Step),
		attribute.String("agent_kind", event.AgentKind),
	)
	if event.Error != "" {
		span.SetAttributes(attribute.String("error", event.Error))
	}

	eventsRecorded.Add(ctx, 1, metric.WithAttributes(attribute.String("agent_kind", event.AgentKind)))
	eventDuration.Record(ctx, float64(event.FinishedAt.Sub(event.StartedAt).Milliseconds()),
		metric.WithAttributes(attribute.String("agent_kind", event.AgentKind)))
}
