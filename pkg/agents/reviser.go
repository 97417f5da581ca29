package agents

import (
	"context"
	"fmt"

	"github.com/weaverlabs/weaver/pkg/domain"
	"github.com/weaverlabs/weaver/pkg/observability"
)

// ReviserAgent produces an improved report from the current report and the
// latest critique.
type ReviserAgent struct {
	llm    domain.LLMClient
	logger observability.Logger
}

// NewReviserAgent creates a reviser
func NewReviserAgent(llm domain.LLMClient, logger observability.Logger) *ReviserAgent {
	return &ReviserAgent{llm: llm, logger: logger}
}

// Revise rewrites the current report to address the latest feedback entry.
// Earlier feedback rounds are ignored. Fails with ErrNoReport or
// ErrNoFeedback when its inputs are missing.
func (a *ReviserAgent) Revise(ctx context.Context, task *domain.Task) (*domain.Report, error) {
	if task.CurrentReport == nil {
		return nil, domain.ErrNoReport
	}
	feedback := task.LatestFeedback()
	if feedback == nil {
		return nil, domain.ErrNoFeedback
	}

	prompt := fmt.Sprintf(`Revise the following research report on: %s

Current report:
%s

Reviewer feedback (score %.1f/10):
Weaknesses:
%s
Missing information:
%s
Actionable suggestions:
%s

Rewrite the full report addressing every weakness and suggestion. Keep what
the reviewer listed as strengths. Return the complete revised report.`,
		task.Query.Topic,
		renderReport(task.CurrentReport),
		feedback.OverallScore,
		renderList(feedback.Weaknesses),
		renderList(feedback.MissingInformation),
		renderList(feedback.ActionableSuggestions))

	var revised domain.Report
	err := a.llm.GenerateStructured(ctx, prompt,
		domain.SchemaHint{Name: "Report", Example: reportExample},
		domain.GenerateOptions{
			SystemPrompt: "You are a research writer revising a report against reviewer feedback.",
			Temperature:  0.5,
		}, &revised)
	if err != nil {
		return nil, fmt.Errorf("revision failed: %w", err)
	}

	prior := task.CurrentReport
	if revised.Title == "" {
		revised.Title = prior.Title
	}
	if len(revised.References) == 0 {
		revised.References = prior.References
	}
	if revised.Metadata == nil {
		revised.Metadata = make(map[string]interface{})
	}
	revised.Metadata[domain.MetaRevisionNumber] = prior.RevisionNumber() + 1
	revised.Metadata[domain.MetaLastCritiqueScore] = feedback.OverallScore
	revised.Metadata[domain.MetaRevisedBy] = string(domain.AgentReviser)

	a.logger.Info(ctx, "report revised", map[string]interface{}{
		"task_id":  task.ID,
		"revision": revised.Metadata[domain.MetaRevisionNumber],
	})

	return &revised, nil
}
