package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/weaverlabs/weaver/pkg/domain"
	"github.com/weaverlabs/weaver/pkg/observability"
)

// Config bounds the quality-gated refinement loop.
type Config struct {
	// QualityThreshold is the minimum critique score that completes the
	// task without further revision.
	QualityThreshold float64
	// MaxRevisionLoops is the authoritative revision budget per run. The
	// task's own MaxRevisions field is informational only.
	MaxRevisionLoops int
}

// DefaultConfig returns the standard refinement bounds.
func DefaultConfig() Config {
	return Config{
		QualityThreshold: 6.5,
		MaxRevisionLoops: 1,
	}
}

// Coordinator sequences one research workflow: plan, gather, draft, then a
// quality-gated critique/revision loop. It owns the task exclusively while
// a run is in flight.
type Coordinator struct {
	store      domain.TaskStore
	researcher domain.Researcher
	critic     domain.Critic
	reviser    domain.Reviser
	notifier   *Notifier
	logger     observability.Logger
	telemetry  *observability.Telemetry
	metrics    *observability.Metrics
	cfg        Config
}

// NewCoordinator wires a coordinator. Notifier, telemetry, and metrics may
// be nil.
func NewCoordinator(
	store domain.TaskStore,
	researcher domain.Researcher,
	critic domain.Critic,
	reviser domain.Reviser,
	notifier *Notifier,
	logger observability.Logger,
	telemetry *observability.Telemetry,
	metrics *observability.Metrics,
	cfg Config,
) *Coordinator {
	if cfg.QualityThreshold == 0 {
		cfg.QualityThreshold = DefaultConfig().QualityThreshold
	}
	if cfg.MaxRevisionLoops < 0 {
		cfg.MaxRevisionLoops = 0
	}
	return &Coordinator{
		store:      store,
		researcher: researcher,
		critic:     critic,
		reviser:    reviser,
		notifier:   notifier,
		logger:     logger,
		telemetry:  telemetry,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// CreateTask validates the query and persists a pending task. It does no
// LLM or network work; callers start the workflow separately.
func (c *Coordinator) CreateTask(ctx context.Context, query domain.ResearchQuery) (*domain.Task, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	task := domain.NewTask(query)
	id, err := c.store.Create(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	task.ID = id

	if c.metrics != nil {
		c.metrics.RecordTaskCreated(ctx)
	}
	c.logger.Info(ctx, "task created", map[string]interface{}{
		"task_id": id,
		"topic":   query.Topic,
	})
	return task, nil
}

// GetTask loads a task by identifier
func (c *Coordinator) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return c.store.Get(ctx, id)
}

// Cancel marks a non-terminal task as failed. It returns false when the
// task is already terminal or unknown; cancellation of a finished run is
// not an error, just a no-op.
func (c *Coordinator) Cancel(ctx context.Context, id string) bool {
	task, err := c.store.Get(ctx, id)
	if err != nil {
		return false
	}
	if task.Status.Terminal() {
		return false
	}

	c.updateStatus(ctx, id, domain.TaskStatusFailed)
	c.logStep(ctx, id, domain.AgentPlanner, "cancel", "task cancelled by request")
	return true
}

// Run executes the full workflow for a stored task. Errors never escape: a
// failing run leaves the task failed and returns. Callers that want
// fire-and-forget semantics run this on its own goroutine.
func (c *Coordinator) Run(ctx context.Context, taskID string) {
	task, err := c.store.Get(ctx, taskID)
	if err != nil {
		c.logger.Error(ctx, "cannot start workflow", err, map[string]interface{}{
			"task_id": taskID,
		})
		return
	}
	if task.Status.Terminal() {
		c.logger.Warn(ctx, "workflow not started, task already terminal", map[string]interface{}{
			"task_id": taskID,
			"status":  string(task.Status),
		})
		return
	}

	if c.telemetry != nil {
		workflowCtx, workflowSpan := c.telemetry.StartWorkflow(ctx, taskID, task.Query.Topic)
		defer workflowSpan.End()
		ctx = workflowCtx
	}

	start := time.Now()
	failed := c.execute(ctx, task)
	if c.metrics != nil {
		c.metrics.RecordWorkflowComplete(ctx, time.Since(start), failed)
	}
}

// execute drives the phases and reports whether the run failed.
func (c *Coordinator) execute(ctx context.Context, task *domain.Task) bool {
	id := task.ID

	// Phase 1: plan, gather, draft.
	c.updateStatus(ctx, id, domain.TaskStatusPlanning)
	c.logStep(ctx, id, domain.AgentResearcher, "research", "planning and gathering sources")

	var report *domain.Report
	priorToolCalls := len(task.ToolsCalled)
	err := c.instrumentPhase(ctx, id, "research", func(ctx context.Context) error {
		var rerr error
		report, rerr = c.researcher.Research(ctx, task)
		return rerr
	})
	if err != nil {
		return c.fail(ctx, id, "research", err)
	}

	c.updateStatus(ctx, id, domain.TaskStatusInProgress)
	c.persistResearch(ctx, task, priorToolCalls)

	task.CurrentReport = report
	if err := c.store.SaveReport(ctx, id, report); err != nil {
		return c.fail(ctx, id, "research", err)
	}
	c.logStep(ctx, id, domain.AgentResearcher, "draft",
		fmt.Sprintf("draft complete with %d sources", len(task.RawSearchResults)))

	// Phase 2: quality-gated refinement. Each round is one critique and,
	// below the gate, one revision; the budget caps the rounds. Errors
	// inside the loop are logged, not fatal: the loop ends and the last
	// good report stands.
	for round := 0; round < c.cfg.MaxRevisionLoops; round++ {
		c.updateStatus(ctx, id, domain.TaskStatusReviewing)

		var feedback *domain.CritiqueFeedback
		err := c.instrumentPhase(ctx, id, "critique", func(ctx context.Context) error {
			var cerr error
			feedback, cerr = c.critic.Critique(ctx, task)
			return cerr
		})
		if err != nil {
			c.logStep(ctx, id, domain.AgentCritic, "critique",
				fmt.Sprintf("critique failed, keeping last report: %v", err))
			break
		}

		task.FeedbackHistory = append(task.FeedbackHistory, *feedback)
		if err := c.store.SaveFeedback(ctx, id, *feedback); err != nil {
			return c.fail(ctx, id, "critique", err)
		}
		if c.metrics != nil {
			c.metrics.RecordCritiqueScore(ctx, feedback.OverallScore, feedback.CritiqueRound)
		}
		c.logStep(ctx, id, domain.AgentCritic, "critique",
			fmt.Sprintf("round %d scored %.1f/10 (%s)", feedback.CritiqueRound, feedback.OverallScore, feedback.Decision))

		// The numeric score against the threshold decides the gate; the
		// decision field is informational.
		if feedback.OverallScore >= c.cfg.QualityThreshold {
			c.logStep(ctx, id, domain.AgentCritic, "gate", "quality threshold met")
			break
		}

		c.updateStatus(ctx, id, domain.TaskStatusRevising)
		var revised *domain.Report
		err = c.instrumentPhase(ctx, id, "revise", func(ctx context.Context) error {
			var rerr error
			revised, rerr = c.reviser.Revise(ctx, task)
			return rerr
		})
		if err != nil {
			c.logStep(ctx, id, domain.AgentReviser, "revise",
				fmt.Sprintf("revision failed, keeping last report: %v", err))
			break
		}

		task.CurrentReport = revised
		task.RevisionCount++
		if err := c.store.SaveReport(ctx, id, revised); err != nil {
			return c.fail(ctx, id, "revise", err)
		}
		if err := c.store.IncrementRevision(ctx, id); err != nil {
			return c.fail(ctx, id, "revise", err)
		}
		if c.metrics != nil {
			c.metrics.RecordRevision(ctx)
		}
		c.logStep(ctx, id, domain.AgentReviser, "revise",
			fmt.Sprintf("revision %d produced", revised.RevisionNumber()))
	}

	c.updateStatus(ctx, id, domain.TaskStatusCompleted)
	c.logStep(ctx, id, domain.AgentPlanner, "complete", "workflow finished")
	return false
}

// persistResearch saves the plan, source dump, and tool-call audit records
// the researcher attached to the task, and logs a summary line per lookup.
func (c *Coordinator) persistResearch(ctx context.Context, task *domain.Task, priorToolCalls int) {
	id := task.ID

	if task.Plan != nil {
		if err := c.store.SavePlan(ctx, id, task.Plan); err != nil {
			c.logger.Warn(ctx, "failed to persist plan", map[string]interface{}{
				"task_id": id, "error": err.Error(),
			})
		}
	}
	if err := c.store.SaveRawResults(ctx, id, task.RawSearchResults); err != nil {
		c.logger.Warn(ctx, "failed to persist raw results", map[string]interface{}{
			"task_id": id, "error": err.Error(),
		})
	}

	newRecords := task.ToolsCalled[priorToolCalls:]
	if len(newRecords) > 0 {
		if err := c.store.AppendToolCalls(ctx, id, newRecords); err != nil {
			c.logger.Warn(ctx, "failed to persist tool calls", map[string]interface{}{
				"task_id": id, "error": err.Error(),
			})
		}
	}
	for _, rec := range newRecords {
		query := rec.Query
		if len(query) > 40 {
			query = query[:40] + "..."
		}
		var msg string
		if rec.Success {
			msg = fmt.Sprintf("[TOOL_CALL] %s(%s) -> %d results", rec.ToolName, query, rec.ResultCount)
		} else {
			msg = fmt.Sprintf("[TOOL_CALL] %s(%s) -> failed: %s", rec.ToolName, query, rec.Error)
		}
		c.logStep(ctx, id, domain.AgentResearcher, "tool_call", msg)
	}
}

// fail marks the task failed and reports the run as failed.
func (c *Coordinator) fail(ctx context.Context, id, step string, err error) bool {
	c.logger.Error(ctx, "workflow step failed", err, map[string]interface{}{
		"task_id": id,
		"step":    step,
	})
	c.logStep(ctx, id, domain.AgentPlanner, step, fmt.Sprintf("workflow failed: %v", err))
	c.updateStatus(ctx, id, domain.TaskStatusFailed)
	return true
}

// updateStatus persists the status and fans out a status_update event.
func (c *Coordinator) updateStatus(ctx context.Context, id string, status domain.TaskStatus) {
	if err := c.store.UpdateStatus(ctx, id, status); err != nil {
		c.logger.Warn(ctx, "failed to update status", map[string]interface{}{
			"task_id": id,
			"status":  string(status),
			"error":   err.Error(),
		})
	}
	if c.notifier != nil {
		c.notifier.Publish(Event{
			Type:      EventStatusUpdate,
			TaskID:    id,
			Status:    status,
			Timestamp: time.Now().UTC(),
		})
	}
}

// logStep appends an agent audit line and fans out a log_message event.
func (c *Coordinator) logStep(ctx context.Context, id string, agent domain.AgentType, step, message string) {
	entry := domain.AgentLogEntry{
		Agent:     agent,
		Step:      step,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := c.store.AppendLog(ctx, id, entry); err != nil {
		c.logger.Warn(ctx, "failed to append agent log", map[string]interface{}{
			"task_id": id,
			"error":   err.Error(),
		})
	}
	if c.notifier != nil {
		c.notifier.Publish(Event{
			Type:      EventLogMessage,
			TaskID:    id,
			Agent:     agent,
			Message:   message,
			Timestamp: entry.Timestamp,
		})
	}
}

func (c *Coordinator) instrumentPhase(ctx context.Context, id, phase string, fn func(context.Context) error) error {
	if c.telemetry == nil {
		return fn(ctx)
	}
	return c.telemetry.InstrumentPhase(ctx, id, phase, fn)
}
