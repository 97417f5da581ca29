package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/weaverlabs/weaver/pkg/domain"
	"github.com/weaverlabs/weaver/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedLLMClient wraps an LLM client with observability
type InstrumentedLLMClient struct {
	client    domain.LLMClient
	telemetry *observability.Telemetry
	metrics   *observability.Metrics
	model     string
}

// NewInstrumentedLLMClient creates a new instrumented LLM client
func NewInstrumentedLLMClient(client domain.LLMClient, telemetry *observability.Telemetry, model string) (*InstrumentedLLMClient, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if telemetry == nil {
		return nil, fmt.Errorf("telemetry is required")
	}

	metrics, err := observability.NewMetrics(telemetry.Meter())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return &InstrumentedLLMClient{
		client:    client,
		telemetry: telemetry,
		metrics:   metrics,
		model:     model,
	}, nil
}

// Generate performs an instrumented text completion
func (c *InstrumentedLLMClient) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	ctx, span := c.telemetry.StartSpan(ctx, "llm.generate",
		trace.WithAttributes(
			attribute.String("llm.model", c.model),
			attribute.String("llm.provider", "groq"),
			attribute.Float64("llm.temperature", opts.Temperature),
		),
	)
	defer span.End()

	startTime := time.Now()
	content, err := c.client.Generate(ctx, prompt, opts)
	duration := time.Since(startTime)

	c.metrics.RecordLLMRequest(ctx, c.model, duration, err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.Int("llm.response_length", len(content)))
	return content, nil
}

// GenerateStructured performs an instrumented structured completion
func (c *InstrumentedLLMClient) GenerateStructured(ctx context.Context, prompt string, schema domain.SchemaHint, opts domain.GenerateOptions, out interface{}) error {
	ctx, span := c.telemetry.StartSpan(ctx, "llm.generate_structured",
		trace.WithAttributes(
			attribute.String("llm.model", c.model),
			attribute.String("llm.provider", "groq"),
			attribute.String("llm.schema", schema.Name),
			attribute.Float64("llm.temperature", opts.Temperature),
		),
	)
	defer span.End()

	startTime := time.Now()
	err := c.client.GenerateStructured(ctx, prompt, schema, opts, out)
	duration := time.Since(startTime)

	c.metrics.RecordLLMRequest(ctx, c.model, duration, err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
