package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "crucible"

// StartDelegationSpan starts a span for one delegation to an agent.
func StartDelegationSpan(ctx context.Context, taskID, agentType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "delegation",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("agent.type", agentType),
		),
	)
}

// StartDecompositionSpan starts a span for a decomposition execution.
func StartDecompositionSpan(ctx context.Context, taskID string, subtasks int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "decomposition",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.Int("subtask.count", subtasks),
		),
	)
}

// StartActionSpan starts a span for one action runner execution.
func StartActionSpan(ctx context.Context, actionID, actionType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "action",
		trace.WithAttributes(
			attribute.String("action.id", actionID),
			attribute.String("action.type", actionType),
		),
	)
}
