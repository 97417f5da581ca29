package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weaverlabs/weaver/pkg/domain"
	"github.com/weaverlabs/weaver/pkg/observability"
)

// ResearcherConfig bounds the gathering and drafting steps.
type ResearcherConfig struct {
	// MaxSources caps how many deduplicated sources feed the draft.
	MaxSources int
	// SnippetLimit caps the length of each source snippet in the prompt.
	SnippetLimit int
	// ResultsPerQuery is passed to each search tool per query.
	ResultsPerQuery int
}

// DefaultResearcherConfig returns the standard gathering bounds.
func DefaultResearcherConfig() ResearcherConfig {
	return ResearcherConfig{
		MaxSources:      15,
		SnippetLimit:    400,
		ResultsPerQuery: 5,
	}
}

// ResearchAgent plans the search strategy, gathers sources from all
// registered tools, and drafts the first report.
type ResearchAgent struct {
	llm       domain.LLMClient
	tools     []domain.SearchTool
	logger    observability.Logger
	telemetry *observability.Telemetry
	cfg       ResearcherConfig
}

// NewResearchAgent creates a researcher. Telemetry may be nil.
func NewResearchAgent(llm domain.LLMClient, tools []domain.SearchTool, logger observability.Logger, telemetry *observability.Telemetry, cfg ResearcherConfig) *ResearchAgent {
	if cfg.MaxSources < 1 {
		cfg.MaxSources = DefaultResearcherConfig().MaxSources
	}
	if cfg.SnippetLimit < 1 {
		cfg.SnippetLimit = DefaultResearcherConfig().SnippetLimit
	}
	if cfg.ResultsPerQuery < 1 {
		cfg.ResultsPerQuery = DefaultResearcherConfig().ResultsPerQuery
	}
	return &ResearchAgent{
		llm:       llm,
		tools:     tools,
		logger:    logger,
		telemetry: telemetry,
		cfg:       cfg,
	}
}

// Research runs planning (if the task has no plan yet), gathering, and
// drafting. It mutates the task's plan, raw results, and tool-call audit
// trail; the returned report is not attached to the task.
func (a *ResearchAgent) Research(ctx context.Context, task *domain.Task) (*domain.Report, error) {
	if task.Plan == nil {
		plan, err := a.plan(ctx, task.Query)
		if err != nil {
			return nil, fmt.Errorf("planning failed: %w", err)
		}
		task.Plan = plan
		a.logger.Info(ctx, "research plan created", map[string]interface{}{
			"task_id":        task.ID,
			"search_queries": len(plan.SearchQueries),
		})
	}

	sources, records := a.gather(ctx, task.Plan, task.Query)
	task.ToolsCalled = append(task.ToolsCalled, records...)

	unique := domain.DedupeSourcesByURL(sources)
	task.RawSearchResults = unique
	a.logger.Info(ctx, "sources gathered", map[string]interface{}{
		"task_id": task.ID,
		"raw":     len(sources),
		"unique":  len(unique),
	})

	report, err := a.draft(ctx, task.Query, task.Plan, unique)
	if err != nil {
		return nil, fmt.Errorf("drafting failed: %w", err)
	}
	return report, nil
}

// plan asks the LLM for a search strategy.
func (a *ResearchAgent) plan(ctx context.Context, query domain.ResearchQuery) (*domain.ResearchPlan, error) {
	prompt := fmt.Sprintf(`Create a research plan for the following request.

Topic: %s
Subtopics:
%s
Depth level: %d of 5
Requirements: %s

Produce 3-6 focused web search queries that together cover the topic and
its subtopics. List the concrete data points a complete report must contain.`,
		query.Topic, renderList(query.Subtopics), query.DepthLevel, query.Requirements)

	var plan domain.ResearchPlan
	err := a.llm.GenerateStructured(ctx, prompt,
		domain.SchemaHint{Name: "ResearchPlan", Example: planExample},
		domain.GenerateOptions{
			SystemPrompt: "You are a research planning assistant. Design focused, non-overlapping search strategies.",
			Temperature:  0.3,
		}, &plan)
	if err != nil {
		return nil, err
	}
	if plan.MainTopic == "" {
		plan.MainTopic = query.Topic
	}
	if len(plan.SearchQueries) == 0 {
		plan.SearchQueries = []string{query.Topic}
	}
	return &plan, nil
}

// gatherBranch is one (tool, query) pair executed concurrently.
type gatherBranch struct {
	tool  domain.SearchTool
	query string
}

// gather fans out every (tool, query) pair concurrently. Each branch writes
// into its own slot so flattening in branch order is deterministic
// regardless of completion order. A failing branch contributes a failure
// record and no sources; it never aborts the others.
func (a *ResearchAgent) gather(ctx context.Context, plan *domain.ResearchPlan, query domain.ResearchQuery) ([]domain.Source, []domain.ToolCallRecord) {
	queries := plan.SearchQueries
	if len(queries) == 0 {
		queries = []string{query.Topic}
	}

	var branches []gatherBranch
	for _, q := range queries {
		for _, tool := range a.tools {
			branches = append(branches, gatherBranch{tool: tool, query: q})
		}
	}

	results := make([][]domain.Source, len(branches))
	records := make([]domain.ToolCallRecord, len(branches))

	var wg sync.WaitGroup
	for i, branch := range branches {
		wg.Add(1)
		go func(i int, b gatherBranch) {
			defer wg.Done()
			results[i], records[i] = a.runBranch(ctx, b)
		}(i, branch)
	}
	wg.Wait()

	var sources []domain.Source
	for _, r := range results {
		sources = append(sources, r...)
	}
	return sources, records
}

func (a *ResearchAgent) runBranch(ctx context.Context, b gatherBranch) ([]domain.Source, domain.ToolCallRecord) {
	start := time.Now()

	var sources []domain.Source
	var err error

	search := func(ctx context.Context) (int, error) {
		sources, err = b.tool.Search(ctx, b.query, a.cfg.ResultsPerQuery)
		return len(sources), err
	}

	if a.telemetry != nil {
		err = a.telemetry.InstrumentToolExecution(ctx, b.tool.Name(), b.query, search)
	} else {
		_, err = search(ctx)
	}

	record := domain.ToolCallRecord{
		ToolName:    b.tool.Name(),
		Query:       b.query,
		ResultCount: len(sources),
		Success:     err == nil,
		DurationMS:  float64(time.Since(start).Milliseconds()),
		Timestamp:   start.UTC(),
	}
	if err != nil {
		record.Error = err.Error()
		a.logger.Warn(ctx, "search tool failed", map[string]interface{}{
			"tool":  b.tool.Name(),
			"query": b.query,
			"error": err.Error(),
		})
		return nil, record
	}
	return sources, record
}

// draft asks the LLM to write the first report from the gathered evidence.
func (a *ResearchAgent) draft(ctx context.Context, query domain.ResearchQuery, plan *domain.ResearchPlan, sources []domain.Source) (*domain.Report, error) {
	used := sources
	if len(used) > a.cfg.MaxSources {
		used = used[:a.cfg.MaxSources]
	}

	prompt := fmt.Sprintf(`Write a research report on: %s

Required data points:
%s

Evidence (cite sources by their [n] number in source_ids):
%s

Write a structured report with an abstract, 2-5 sections, and a conclusion.
Ground every claim in the evidence above.`,
		query.Topic, renderList(plan.RequiredDataPoints), renderSources(used, a.cfg.SnippetLimit))

	var report domain.Report
	err := a.llm.GenerateStructured(ctx, prompt,
		domain.SchemaHint{Name: "Report", Example: reportExample},
		domain.GenerateOptions{
			SystemPrompt: "You are a research writer. Write precise, well-sourced reports.",
			Temperature:  0.5,
		}, &report)
	if err != nil {
		return nil, err
	}

	if report.Title == "" {
		report.Title = query.Topic
	}
	if len(report.References) == 0 {
		report.References = used
	}
	if report.Metadata == nil {
		report.Metadata = make(map[string]interface{})
	}
	report.Metadata[domain.MetaGeneratedBy] = string(domain.AgentResearcher)
	report.Metadata[domain.MetaSourceCount] = len(used)
	report.Metadata[domain.MetaRevisionNumber] = 1

	return &report, nil
}
