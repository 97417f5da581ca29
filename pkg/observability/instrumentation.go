package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentPhase wraps one orchestrator phase with a span.
func (t *Telemetry) InstrumentPhase(ctx context.Context, taskID, phase string, fn func(context.Context) error) error {
	ctx, span := t.StartSpan(ctx, fmt.Sprintf("workflow.phase.%s", phase),
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("phase", phase),
		),
	)
	defer span.End()

	startTime := time.Now()
	err := fn(ctx)
	duration := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(attribute.Float64("duration.seconds", duration.Seconds()))
	return err
}

// InstrumentToolExecution wraps a search tool execution with a span.
func (t *Telemetry) InstrumentToolExecution(ctx context.Context, toolName, query string, fn func(context.Context) (int, error)) error {
	ctx, span := t.StartSpan(ctx, fmt.Sprintf("tool.%s", toolName),
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
			attribute.String("tool.query", query),
		),
	)
	defer span.End()

	startTime := time.Now()
	resultCount, err := fn(ctx)
	duration := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Int("tool.result_count", resultCount))
	}

	span.SetAttributes(attribute.Float64("tool.duration_seconds", duration.Seconds()))
	return err
}

// StartWorkflow starts the root span for one research workflow run.
func (t *Telemetry) StartWorkflow(ctx context.Context, taskID, topic string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.topic", topic),
		),
	)
}
