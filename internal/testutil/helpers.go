package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/weaverlabs/weaver/pkg/domain"
)

// TestTimeout provides a standard timeout for test contexts
const TestTimeout = 5 * time.Second

// NewTestContext creates a context with standard test timeout
func NewTestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	t.Cleanup(cancel)
	return ctx
}

// NewTestQuery creates a valid research query
func NewTestQuery(topic string) domain.ResearchQuery {
	return domain.ResearchQuery{
		Topic:      topic,
		Subtopics:  []string{"background", "current state"},
		DepthLevel: 2,
	}
}

// NewTestTask creates a pending task with a fixed id
func NewTestTask(topic string) *domain.Task {
	task := domain.NewTask(NewTestQuery(topic))
	task.ID = "test-task-1"
	return task
}

// NewTestPlan creates a small research plan
func NewTestPlan(topic string) *domain.ResearchPlan {
	return &domain.ResearchPlan{
		MainTopic:          topic,
		Subtopics:          []string{"background"},
		SearchQueries:      []string{topic + " overview"},
		RequiredDataPoints: []string{"definition"},
	}
}

// NewTestReport creates a first-draft report with standard metadata stamps
func NewTestReport(title string) *domain.Report {
	return &domain.Report{
		Title:    title,
		Abstract: "Test abstract",
		Sections: []domain.ReportSection{
			{Title: "Background", Content: "Test content", SourceIDs: []domain.SourceID{"1"}},
		},
		Conclusion: "Test conclusion",
		Metadata: map[string]interface{}{
			domain.MetaGeneratedBy:    string(domain.AgentResearcher),
			domain.MetaSourceCount:    1,
			domain.MetaRevisionNumber: 1,
		},
	}
}

// NewTestSource creates a source with the given url
func NewTestSource(title, url string) domain.Source {
	return domain.Source{
		Title:            title,
		URL:              url,
		Content:          "content for " + title,
		RelevanceScore:   0.8,
		CredibilityScore: 0.7,
	}
}

// AssertEqual checks if two values are equal
func AssertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertNoError checks if error is nil
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", msg, err)
	}
}

// AssertError checks if error is not nil
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Errorf("%s: expected error but got nil", msg)
	}
}

// Eventually polls the condition until it returns true or the deadline
// passes.
func Eventually(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}
