package agents

import (
	"context"
	"fmt"

	"github.com/weaverlabs/weaver/pkg/domain"
	"github.com/weaverlabs/weaver/pkg/observability"
)

// Critique scoring instructions. The policy forces mid-range scores so the
// quality gate has real discriminating power; models left unguided cluster
// around 8-9.
const criticSystemPrompt = `You are a strict research report reviewer.
Score reports on a 0-10 scale using the full range:
- 0-3: fundamentally flawed, unsupported claims or missing structure
- 4-6: adequate but with concrete gaps; most first drafts land here
- 7-8: strong, well-sourced, only minor issues
- 9-10: exceptional; reserve these for truly outstanding work
Be specific. Every weakness must come with an actionable suggestion.`

// CriticAgent evaluates the task's current report and produces structured
// feedback.
type CriticAgent struct {
	llm    domain.LLMClient
	logger observability.Logger
}

// NewCriticAgent creates a critic
func NewCriticAgent(llm domain.LLMClient, logger observability.Logger) *CriticAgent {
	return &CriticAgent{llm: llm, logger: logger}
}

// Critique reviews the current report. Fails with ErrNoReport if the task
// has none. The critique round is derived from the feedback history length.
func (a *CriticAgent) Critique(ctx context.Context, task *domain.Task) (*domain.CritiqueFeedback, error) {
	if task.CurrentReport == nil {
		return nil, domain.ErrNoReport
	}

	prompt := fmt.Sprintf(`Review the following research report on: %s

Report:
%s

Evaluate coverage of the topic, sourcing quality, structure, and accuracy.
Return your verdict with a numeric overall score.`,
		task.Query.Topic, renderReport(task.CurrentReport))

	var feedback domain.CritiqueFeedback
	err := a.llm.GenerateStructured(ctx, prompt,
		domain.SchemaHint{Name: "CritiqueFeedback", Example: critiqueExample},
		domain.GenerateOptions{
			SystemPrompt: criticSystemPrompt,
			Temperature:  0.2,
		}, &feedback)
	if err != nil {
		return nil, fmt.Errorf("critique failed: %w", err)
	}

	if feedback.OverallScore < 0 {
		feedback.OverallScore = 0
	}
	if feedback.OverallScore > 10 {
		feedback.OverallScore = 10
	}
	if feedback.Decision != domain.DecisionApprove && feedback.Decision != domain.DecisionRevise {
		feedback.Decision = domain.DecisionRevise
	}
	feedback.CritiqueRound = len(task.FeedbackHistory) + 1

	a.logger.Info(ctx, "report critiqued", map[string]interface{}{
		"task_id":  task.ID,
		"score":    feedback.OverallScore,
		"round":    feedback.CritiqueRound,
		"decision": feedback.Decision,
	})

	return &feedback, nil
}
