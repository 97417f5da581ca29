package agents

import (
	"errors"
	"strings"
	"testing"

	"github.com/weaverlabs/weaver/internal/testutil"
	"github.com/weaverlabs/weaver/pkg/domain"
)

const revisedReportJSON = `{
	"title": "Go Concurrency, Revised",
	"abstract": "Improved overview.",
	"sections": [{"title": "Basics", "content": "More depth.", "source_ids": ["1"]}],
	"conclusion": "Stronger conclusion."
}`

func TestReviserAgent_RequiresReport(t *testing.T) {
	llm := testutil.NewMockLLMClient()
	agent := NewReviserAgent(llm, testLogger)

	task := testutil.NewTestTask("topic")
	task.FeedbackHistory = []domain.CritiqueFeedback{{OverallScore: 4}}

	_, err := agent.Revise(testutil.NewTestContext(t), task)
	if !errors.Is(err, domain.ErrNoReport) {
		t.Fatalf("err = %v, want ErrNoReport", err)
	}
}

func TestReviserAgent_RequiresFeedback(t *testing.T) {
	llm := testutil.NewMockLLMClient()
	agent := NewReviserAgent(llm, testLogger)

	task := testutil.NewTestTask("topic")
	task.CurrentReport = testutil.NewTestReport("Draft")

	_, err := agent.Revise(testutil.NewTestContext(t), task)
	if !errors.Is(err, domain.ErrNoFeedback) {
		t.Fatalf("err = %v, want ErrNoFeedback", err)
	}
	if llm.CallCount != 0 {
		t.Error("precondition failure must not reach the LLM")
	}
}

func TestReviserAgent_Revise(t *testing.T) {
	llm := testutil.NewMockLLMClient()
	llm.StructuredResponses["Report"] = revisedReportJSON
	agent := NewReviserAgent(llm, testLogger)

	task := testutil.NewTestTask("topic")
	task.CurrentReport = testutil.NewTestReport("Draft")
	task.CurrentReport.References = []domain.Source{testutil.NewTestSource("A", "https://a.example")}
	task.FeedbackHistory = []domain.CritiqueFeedback{
		{OverallScore: 5.5, CritiqueRound: 1, Weaknesses: []string{"thin sourcing"}},
	}

	revised, err := agent.Revise(testutil.NewTestContext(t), task)
	if err != nil {
		t.Fatalf("Revise failed: %v", err)
	}

	if revised.RevisionNumber() != 2 {
		t.Errorf("RevisionNumber = %d, want 2", revised.RevisionNumber())
	}
	if revised.Metadata[domain.MetaLastCritiqueScore] != 5.5 {
		t.Errorf("last_critique_score = %v, want 5.5", revised.Metadata[domain.MetaLastCritiqueScore])
	}
	if revised.Metadata[domain.MetaRevisedBy] != string(domain.AgentReviser) {
		t.Errorf("revised_by = %v", revised.Metadata[domain.MetaRevisedBy])
	}
	// References carry over when the model omits them.
	if len(revised.References) != 1 {
		t.Errorf("len(References) = %d, want 1", len(revised.References))
	}
}

func TestReviserAgent_UsesLatestFeedbackOnly(t *testing.T) {
	llm := testutil.NewMockLLMClient()
	llm.StructuredResponses["Report"] = revisedReportJSON
	agent := NewReviserAgent(llm, testLogger)

	task := testutil.NewTestTask("topic")
	task.CurrentReport = testutil.NewTestReport("Draft")
	task.FeedbackHistory = []domain.CritiqueFeedback{
		{OverallScore: 3.0, CritiqueRound: 1, Weaknesses: []string{"stale first-round issue"}},
		{OverallScore: 5.0, CritiqueRound: 2, Weaknesses: []string{"fresh second-round issue"}},
	}

	if _, err := agent.Revise(testutil.NewTestContext(t), task); err != nil {
		t.Fatalf("Revise failed: %v", err)
	}

	if !strings.Contains(llm.LastPrompt, "fresh second-round issue") {
		t.Error("prompt should include the latest feedback")
	}
	if strings.Contains(llm.LastPrompt, "stale first-round issue") {
		t.Error("prompt must not include earlier feedback rounds")
	}
}

func TestReviserAgent_RevisionNumberChains(t *testing.T) {
	llm := testutil.NewMockLLMClient()
	llm.StructuredResponses["Report"] = revisedReportJSON
	agent := NewReviserAgent(llm, testLogger)

	task := testutil.NewTestTask("topic")
	task.CurrentReport = testutil.NewTestReport("Draft")
	// Simulate a prior revision round-tripped through JSON, where the stamp
	// widened to float64.
	task.CurrentReport.Metadata[domain.MetaRevisionNumber] = float64(2)
	task.FeedbackHistory = []domain.CritiqueFeedback{{OverallScore: 6.0, CritiqueRound: 2}}

	revised, err := agent.Revise(testutil.NewTestContext(t), task)
	if err != nil {
		t.Fatalf("Revise failed: %v", err)
	}
	if revised.RevisionNumber() != 3 {
		t.Errorf("RevisionNumber = %d, want 3", revised.RevisionNumber())
	}
}
