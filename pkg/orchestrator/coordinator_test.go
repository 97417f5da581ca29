package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/weaverlabs/weaver/internal/testutil"
	"github.com/weaverlabs/weaver/pkg/domain"
	"github.com/weaverlabs/weaver/pkg/observability"
	"github.com/weaverlabs/weaver/pkg/store"
)

var testLogger = observability.NewStructuredLogger("test")

// eventCollector records every event it receives, in order.
type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (c *eventCollector) Notify(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *eventCollector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *eventCollector) statuses() []domain.TaskStatus {
	var out []domain.TaskStatus
	for _, e := range c.all() {
		if e.Type == EventStatusUpdate {
			out = append(out, e.Status)
		}
	}
	return out
}

type fixture struct {
	store      *store.MemoryStore
	researcher *testutil.MockResearcher
	critic     *testutil.MockCritic
	reviser    *testutil.MockReviser
	collector  *eventCollector
	coord      *Coordinator
}

func newFixture(t *testing.T, cfg Config, scores ...float64) *fixture {
	t.Helper()

	feedbacks := make([]domain.CritiqueFeedback, len(scores))
	for i, s := range scores {
		decision := domain.DecisionRevise
		if s >= cfg.QualityThreshold {
			decision = domain.DecisionApprove
		}
		feedbacks[i] = domain.CritiqueFeedback{
			OverallScore:  s,
			CritiqueRound: i + 1,
			Decision:      decision,
		}
	}

	f := &fixture{
		store:      store.NewMemoryStore(),
		researcher: &testutil.MockResearcher{Report: testutil.NewTestReport("Draft")},
		critic:     &testutil.MockCritic{Feedbacks: feedbacks},
		reviser:    &testutil.MockReviser{Report: testutil.NewTestReport("Revised")},
		collector:  &eventCollector{},
	}
	notifier := NewNotifier(testLogger)
	notifier.Register(f.collector)
	f.coord = NewCoordinator(f.store, f.researcher, f.critic, f.reviser,
		notifier, testLogger, nil, nil, cfg)
	return f
}

func (f *fixture) createAndRun(t *testing.T) *domain.Task {
	t.Helper()
	ctx := context.Background()
	task, err := f.coord.CreateTask(ctx, testutil.NewTestQuery("test topic"))
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	f.coord.Run(ctx, task.ID)
	final, err := f.store.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return final
}

func TestCoordinator_ApprovedFirstPass(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 8.0)
	task := f.createAndRun(t)

	if task.Status != domain.TaskStatusCompleted {
		t.Errorf("Status = %q, want completed", task.Status)
	}
	if f.critic.Calls() != 1 {
		t.Errorf("critic calls = %d, want 1", f.critic.Calls())
	}
	if f.reviser.Calls() != 0 {
		t.Errorf("reviser calls = %d, want 0", f.reviser.Calls())
	}
	if task.RevisionCount != 0 {
		t.Errorf("RevisionCount = %d, want 0", task.RevisionCount)
	}
	if task.CurrentReport == nil || task.CurrentReport.Title != "Draft" {
		t.Error("draft report should be the final report")
	}
	if len(task.FeedbackHistory) != 1 {
		t.Errorf("len(FeedbackHistory) = %d, want 1", len(task.FeedbackHistory))
	}
}

func TestCoordinator_OneRevisionThenComplete(t *testing.T) {
	// First critique below threshold, second above; the budget of two
	// rounds leaves room for the second critique to approve.
	f := newFixture(t, Config{QualityThreshold: 6.5, MaxRevisionLoops: 2}, 5.0, 7.5)
	task := f.createAndRun(t)

	if task.Status != domain.TaskStatusCompleted {
		t.Errorf("Status = %q, want completed", task.Status)
	}
	if f.critic.Calls() != 2 {
		t.Errorf("critic calls = %d, want 2", f.critic.Calls())
	}
	if f.reviser.Calls() != 1 {
		t.Errorf("reviser calls = %d, want 1", f.reviser.Calls())
	}
	if task.RevisionCount != 1 {
		t.Errorf("RevisionCount = %d, want 1", task.RevisionCount)
	}
	if task.CurrentReport.Title != "Revised" {
		t.Errorf("final report = %q, want Revised", task.CurrentReport.Title)
	}
	if len(task.FeedbackHistory) != 2 {
		t.Errorf("len(FeedbackHistory) = %d, want 2", len(task.FeedbackHistory))
	}
}

func TestCoordinator_BudgetExhaustedStillCompletes(t *testing.T) {
	// The critique stays below threshold; the loop budget, not the score,
	// ends the run. A budget of one means exactly one critique and one
	// revision, and the revised report ships without being re-critiqued.
	f := newFixture(t, DefaultConfig(), 3.0)
	task := f.createAndRun(t)

	if task.Status != domain.TaskStatusCompleted {
		t.Errorf("Status = %q, want completed", task.Status)
	}
	if f.critic.Calls() != 1 {
		t.Errorf("critic calls = %d, want one per budgeted round = 1", f.critic.Calls())
	}
	if f.reviser.Calls() != 1 {
		t.Errorf("reviser calls = %d, want 1", f.reviser.Calls())
	}
	if len(task.FeedbackHistory) != 1 {
		t.Errorf("len(FeedbackHistory) = %d, want 1", len(task.FeedbackHistory))
	}
	if task.CurrentReport == nil || task.CurrentReport.Title != "Revised" {
		t.Fatal("last revision must be kept when the budget runs out")
	}
}

func TestCoordinator_LargerBudget(t *testing.T) {
	cfg := Config{QualityThreshold: 6.5, MaxRevisionLoops: 3}
	f := newFixture(t, cfg, 3.0, 4.0, 5.0)
	task := f.createAndRun(t)

	if task.Status != domain.TaskStatusCompleted {
		t.Errorf("Status = %q, want completed", task.Status)
	}
	if f.reviser.Calls() != 3 {
		t.Errorf("reviser calls = %d, want 3", f.reviser.Calls())
	}
	if f.critic.Calls() != 3 {
		t.Errorf("critic calls = %d, want 3", f.critic.Calls())
	}
	if task.RevisionCount != 3 {
		t.Errorf("RevisionCount = %d, want 3", task.RevisionCount)
	}
}

func TestCoordinator_TaskMaxRevisionsIsInformational(t *testing.T) {
	// The configured budget governs the loop even though the task itself
	// carries a larger informational cap.
	f := newFixture(t, Config{QualityThreshold: 6.5, MaxRevisionLoops: 1}, 2.0, 2.0, 2.0)
	task := f.createAndRun(t)

	if task.MaxRevisions != domain.DefaultMaxRevisions {
		t.Fatalf("MaxRevisions = %d, want %d", task.MaxRevisions, domain.DefaultMaxRevisions)
	}
	if f.reviser.Calls() != 1 {
		t.Errorf("reviser calls = %d, want configured budget 1", f.reviser.Calls())
	}
}

func TestCoordinator_ResearchFailureFailsTask(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 8.0)
	f.researcher.Report = nil
	f.researcher.Err = fmt.Errorf("llm unavailable")

	task := f.createAndRun(t)

	if task.Status != domain.TaskStatusFailed {
		t.Errorf("Status = %q, want failed", task.Status)
	}
	if f.critic.Calls() != 0 {
		t.Error("critic must not run after research failure")
	}
	if task.CompletedAt == nil {
		t.Error("terminal task should carry CompletedAt")
	}

	var logged bool
	for _, entry := range task.AgentLogs {
		if strings.Contains(entry.Message, "llm unavailable") {
			logged = true
			break
		}
	}
	if !logged {
		t.Errorf("agent logs %v should record the research failure cause", task.AgentLogs)
	}
}

func TestCoordinator_CritiqueFailureKeepsDraft(t *testing.T) {
	// A critique failure ends refinement without re-reviewing, but the
	// draft still ships and the task completes.
	f := newFixture(t, DefaultConfig())
	f.critic.Err = fmt.Errorf("critic unavailable")

	task := f.createAndRun(t)

	if task.Status != domain.TaskStatusCompleted {
		t.Errorf("Status = %q, want completed", task.Status)
	}
	if task.CurrentReport == nil || task.CurrentReport.Title != "Draft" {
		t.Error("draft report must survive a critique failure")
	}
	if f.reviser.Calls() != 0 {
		t.Errorf("reviser calls = %d, want 0", f.reviser.Calls())
	}

	var logged bool
	for _, entry := range task.AgentLogs {
		if strings.Contains(entry.Message, "keeping last report") {
			logged = true
			break
		}
	}
	if !logged {
		t.Error("agent logs should record that the critique failure kept the last report")
	}
}

func TestCoordinator_ReviserFailureKeepsLastReport(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 5.0)
	f.reviser.Report = nil
	f.reviser.Err = fmt.Errorf("reviser unavailable")

	task := f.createAndRun(t)

	if task.Status != domain.TaskStatusCompleted {
		t.Errorf("Status = %q, want completed (loop-local recovery)", task.Status)
	}
	if task.CurrentReport == nil || task.CurrentReport.Title != "Draft" {
		t.Error("last good report must survive a revision failure")
	}
	if task.RevisionCount != 0 {
		t.Errorf("RevisionCount = %d, want 0", task.RevisionCount)
	}
}

func TestCoordinator_LaterCritiqueFailureKeepsLastReport(t *testing.T) {
	f := newFixture(t, Config{QualityThreshold: 6.5, MaxRevisionLoops: 2}, 5.0)
	first := true
	f.critic.CritiqueFunc = func(ctx context.Context, task *domain.Task) (*domain.CritiqueFeedback, error) {
		if first {
			first = false
			return &domain.CritiqueFeedback{OverallScore: 5.0, CritiqueRound: 1, Decision: domain.DecisionRevise}, nil
		}
		return nil, fmt.Errorf("critic crashed")
	}

	task := f.createAndRun(t)

	if task.Status != domain.TaskStatusCompleted {
		t.Errorf("Status = %q, want completed", task.Status)
	}
	if task.CurrentReport == nil || task.CurrentReport.Title != "Revised" {
		t.Error("revised report must survive a later critique failure")
	}
}

func TestCoordinator_StatusEventOrdering(t *testing.T) {
	f := newFixture(t, Config{QualityThreshold: 6.5, MaxRevisionLoops: 2}, 5.0, 7.5)
	f.createAndRun(t)

	want := []domain.TaskStatus{
		domain.TaskStatusPlanning,
		domain.TaskStatusInProgress,
		domain.TaskStatusReviewing,
		domain.TaskStatusRevising,
		domain.TaskStatusReviewing,
		domain.TaskStatusCompleted,
	}
	got := f.collector.statuses()
	if len(got) != len(want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statuses[%d] = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}

	// Every adjacent pair must be a legal state machine step.
	prev := domain.TaskStatusPending
	for _, s := range got {
		if !prev.CanTransitionTo(s) {
			t.Errorf("illegal transition %q -> %q", prev, s)
		}
		prev = s
	}
}

func TestCoordinator_LogEventsCarryAgentAndMessage(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 8.0)
	task := f.createAndRun(t)

	var sawToolSummaryTarget bool
	for _, e := range f.collector.all() {
		if e.Type != EventLogMessage {
			continue
		}
		if e.TaskID != task.ID {
			t.Errorf("log event TaskID = %q, want %q", e.TaskID, task.ID)
		}
		if e.Message == "" || e.Agent == "" {
			t.Errorf("log event missing fields: %+v", e)
		}
		if e.Agent == domain.AgentCritic {
			sawToolSummaryTarget = true
		}
	}
	if !sawToolSummaryTarget {
		t.Error("expected at least one critic log event")
	}
	if len(task.AgentLogs) == 0 {
		t.Error("agent audit trail should be persisted")
	}
}

func TestCoordinator_ToolCallSummaries(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 8.0)
	f.researcher.ResearchFunc = func(ctx context.Context, task *domain.Task) (*domain.Report, error) {
		task.ToolsCalled = append(task.ToolsCalled,
			domain.ToolCallRecord{ToolName: "tavily_search", Query: "q", ResultCount: 3, Success: true},
			domain.ToolCallRecord{ToolName: "wikipedia_search", Query: "q", Success: false, Error: "timeout"},
		)
		task.RawSearchResults = []domain.Source{testutil.NewTestSource("A", "https://a.example")}
		return testutil.NewTestReport("Draft"), nil
	}

	task := f.createAndRun(t)

	if len(task.ToolsCalled) != 2 {
		t.Fatalf("len(ToolsCalled) = %d, want 2", len(task.ToolsCalled))
	}

	var summaries []string
	for _, entry := range task.AgentLogs {
		if entry.Step == "tool_call" {
			summaries = append(summaries, entry.Message)
		}
	}
	if len(summaries) != 2 {
		t.Fatalf("tool_call summaries = %v, want 2 entries", summaries)
	}
	if summaries[0] != "[TOOL_CALL] tavily_search(q) -> 3 results" {
		t.Errorf("summary = %q", summaries[0])
	}
	if summaries[1] != "[TOOL_CALL] wikipedia_search(q) -> failed: timeout" {
		t.Errorf("summary = %q", summaries[1])
	}
}

func TestCoordinator_CreateTaskValidatesQuery(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 8.0)
	_, err := f.coord.CreateTask(context.Background(), domain.ResearchQuery{Topic: "", DepthLevel: 2})
	if err == nil {
		t.Fatal("expected validation error for empty topic")
	}
}

func TestCoordinator_Cancel(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 8.0)
	ctx := context.Background()

	task, err := f.coord.CreateTask(ctx, testutil.NewTestQuery("topic"))
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if !f.coord.Cancel(ctx, task.ID) {
		t.Error("cancelling a pending task should succeed")
	}
	got, _ := f.store.Get(ctx, task.ID)
	if got.Status != domain.TaskStatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}

	// Terminal tasks and unknown ids are no-ops.
	if f.coord.Cancel(ctx, task.ID) {
		t.Error("cancelling a terminal task should return false")
	}
	if f.coord.Cancel(ctx, "missing") {
		t.Error("cancelling an unknown task should return false")
	}
}

func TestCoordinator_RunSkipsTerminalTask(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 8.0)
	ctx := context.Background()

	task, _ := f.coord.CreateTask(ctx, testutil.NewTestQuery("topic"))
	f.coord.Cancel(ctx, task.ID)
	f.coord.Run(ctx, task.ID)

	if f.researcher.Calls() != 0 {
		t.Error("a cancelled task must not start researching")
	}
	got, _ := f.store.Get(ctx, task.ID)
	if got.Status != domain.TaskStatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
}

func TestCoordinator_RunUnknownTask(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 8.0)
	// Must not panic and must not invoke any agent.
	f.coord.Run(context.Background(), "missing")
	if f.researcher.Calls() != 0 {
		t.Error("unknown task must not start researching")
	}
}

func TestCoordinator_GetTask(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 8.0)
	ctx := context.Background()

	task, _ := f.coord.CreateTask(ctx, testutil.NewTestQuery("topic"))
	got, err := f.coord.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.ID != task.ID {
		t.Errorf("ID = %q, want %q", got.ID, task.ID)
	}

	if _, err := f.coord.GetTask(ctx, "missing"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}
