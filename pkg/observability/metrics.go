package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	meter metric.Meter

	// Counters
	tasksCreatedTotal       metric.Int64Counter
	workflowsCompletedTotal metric.Int64Counter
	workflowsFailedTotal    metric.Int64Counter
	revisionsTotal          metric.Int64Counter
	llmRequestsTotal        metric.Int64Counter
	toolExecutionsTotal     metric.Int64Counter

	// Histograms
	workflowDuration      metric.Float64Histogram
	critiqueScore         metric.Float64Histogram
	llmRequestDuration    metric.Float64Histogram
	toolExecutionDuration metric.Float64Histogram
}

// NewMetrics creates and initializes all metrics
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{
		meter: meter,
	}

	var err error

	m.tasksCreatedTotal, err = meter.Int64Counter(
		"research_tasks_created_total",
		metric.WithDescription("Total number of research tasks created"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.workflowsCompletedTotal, err = meter.Int64Counter(
		"research_workflows_completed_total",
		metric.WithDescription("Total number of workflows that reached completed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.workflowsFailedTotal, err = meter.Int64Counter(
		"research_workflows_failed_total",
		metric.WithDescription("Total number of workflows that reached failed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.revisionsTotal, err = meter.Int64Counter(
		"research_revisions_total",
		metric.WithDescription("Total number of completed revision cycles"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.llmRequestsTotal, err = meter.Int64Counter(
		"llm_requests_total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.toolExecutionsTotal, err = meter.Int64Counter(
		"tool_executions_total",
		metric.WithDescription("Total number of search tool executions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.workflowDuration, err = meter.Float64Histogram(
		"research_workflow_duration_seconds",
		metric.WithDescription("Duration of complete research workflows in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.critiqueScore, err = meter.Float64Histogram(
		"critique_score",
		metric.WithDescription("Critique scores on the 0-10 scale"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.llmRequestDuration, err = meter.Float64Histogram(
		"llm_request_duration_seconds",
		metric.WithDescription("Duration of LLM requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.toolExecutionDuration, err = meter.Float64Histogram(
		"tool_execution_duration_seconds",
		metric.WithDescription("Duration of search tool executions in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTaskCreated records a new research task
func (m *Metrics) RecordTaskCreated(ctx context.Context) {
	m.tasksCreatedTotal.Add(ctx, 1)
}

// RecordWorkflowComplete records a finished workflow and its duration
func (m *Metrics) RecordWorkflowComplete(ctx context.Context, duration time.Duration, failed bool) {
	if failed {
		m.workflowsFailedTotal.Add(ctx, 1)
	} else {
		m.workflowsCompletedTotal.Add(ctx, 1)
	}
	m.workflowDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("failed", failed)))
}

// RecordRevision records one completed revision cycle
func (m *Metrics) RecordRevision(ctx context.Context) {
	m.revisionsTotal.Add(ctx, 1)
}

// RecordCritiqueScore records a critique score
func (m *Metrics) RecordCritiqueScore(ctx context.Context, score float64, round int) {
	m.critiqueScore.Record(ctx, score,
		metric.WithAttributes(attribute.Int("round", round)))
}

// RecordLLMRequest records an LLM request with its duration and outcome
func (m *Metrics) RecordLLMRequest(ctx context.Context, model string, duration time.Duration, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("success", success),
	)
	m.llmRequestsTotal.Add(ctx, 1, attrs)
	m.llmRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolExecution records a search tool execution
func (m *Metrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("success", success),
	)
	m.toolExecutionsTotal.Add(ctx, 1, attrs)
	m.toolExecutionDuration.Record(ctx, duration.Seconds(), attrs)
}
