package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/weaverlabs/weaver/pkg/domain"
)

// MockLLMClient is a scriptable implementation of domain.LLMClient.
// Structured responses are keyed by schema name; GenerateFunc and
// GenerateStructuredFunc override everything when set.
type MockLLMClient struct {
	mu sync.Mutex

	// Responses maps prompt substrings to plain completions; "default" is
	// the fallback.
	Responses map[string]string
	// StructuredResponses maps schema names to JSON payloads decoded into
	// the output value.
	StructuredResponses map[string]string

	CallCount   int
	LastPrompt  string
	ShouldError bool
	ErrorMsg    string

	GenerateFunc           func(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error)
	GenerateStructuredFunc func(ctx context.Context, prompt string, schema domain.SchemaHint, opts domain.GenerateOptions, out interface{}) error
}

// NewMockLLMClient creates an empty scriptable LLM client
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		Responses:           make(map[string]string),
		StructuredResponses: make(map[string]string),
	}
}

// Generate implements domain.LLMClient
func (m *MockLLMClient) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastPrompt = prompt
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, opts)
	}
	if m.ShouldError {
		return "", fmt.Errorf("%s", m.ErrorMsg)
	}
	if resp, ok := m.Responses[prompt]; ok {
		return resp, nil
	}
	if resp, ok := m.Responses["default"]; ok {
		return resp, nil
	}
	return "mock response", nil
}

// GenerateStructured implements domain.LLMClient
func (m *MockLLMClient) GenerateStructured(ctx context.Context, prompt string, schema domain.SchemaHint, opts domain.GenerateOptions, out interface{}) error {
	m.mu.Lock()
	m.CallCount++
	m.LastPrompt = prompt
	m.mu.Unlock()

	if m.GenerateStructuredFunc != nil {
		return m.GenerateStructuredFunc(ctx, prompt, schema, opts, out)
	}
	if m.ShouldError {
		return fmt.Errorf("%s", m.ErrorMsg)
	}
	payload, ok := m.StructuredResponses[schema.Name]
	if !ok {
		return fmt.Errorf("no structured response scripted for schema %s", schema.Name)
	}
	return json.Unmarshal([]byte(payload), out)
}

// MockSearchTool is a scriptable implementation of domain.SearchTool that
// records every query it receives.
type MockSearchTool struct {
	mu sync.Mutex

	ToolName string
	Results  []domain.Source
	Err      error
	// SearchFunc overrides Results/Err when set.
	SearchFunc func(ctx context.Context, query string, maxResults int) ([]domain.Source, error)

	Queries []string
}

// NewMockSearchTool creates a search tool returning the given results
func NewMockSearchTool(name string, results []domain.Source) *MockSearchTool {
	return &MockSearchTool{ToolName: name, Results: results}
}

// Name implements domain.SearchTool
func (m *MockSearchTool) Name() string {
	return m.ToolName
}

// Search implements domain.SearchTool
func (m *MockSearchTool) Search(ctx context.Context, query string, maxResults int) ([]domain.Source, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, query)
	m.mu.Unlock()

	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query, maxResults)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Results, nil
}

// QueryCount returns how many searches the tool received.
func (m *MockSearchTool) QueryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Queries)
}

// MockResearcher is a scriptable implementation of domain.Researcher.
type MockResearcher struct {
	mu        sync.Mutex
	CallCount int

	Report       *domain.Report
	Err          error
	ResearchFunc func(ctx context.Context, task *domain.Task) (*domain.Report, error)
}

// Research implements domain.Researcher
func (m *MockResearcher) Research(ctx context.Context, task *domain.Task) (*domain.Report, error) {
	m.mu.Lock()
	m.CallCount++
	m.mu.Unlock()

	if m.ResearchFunc != nil {
		return m.ResearchFunc(ctx, task)
	}
	return m.Report, m.Err
}

// Calls returns how many times Research ran.
func (m *MockResearcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// MockCritic is a scriptable implementation of domain.Critic. Feedbacks are
// consumed in order; the last entry repeats once exhausted.
type MockCritic struct {
	mu        sync.Mutex
	CallCount int

	Feedbacks    []domain.CritiqueFeedback
	Err          error
	CritiqueFunc func(ctx context.Context, task *domain.Task) (*domain.CritiqueFeedback, error)
}

// Critique implements domain.Critic
func (m *MockCritic) Critique(ctx context.Context, task *domain.Task) (*domain.CritiqueFeedback, error) {
	m.mu.Lock()
	call := m.CallCount
	m.CallCount++
	m.mu.Unlock()

	if m.CritiqueFunc != nil {
		return m.CritiqueFunc(ctx, task)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Feedbacks) == 0 {
		return nil, fmt.Errorf("no feedback scripted")
	}
	if call >= len(m.Feedbacks) {
		call = len(m.Feedbacks) - 1
	}
	fb := m.Feedbacks[call]
	return &fb, nil
}

// Calls returns how many times Critique ran.
func (m *MockCritic) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// MockReviser is a scriptable implementation of domain.Reviser.
type MockReviser struct {
	mu        sync.Mutex
	CallCount int

	Report     *domain.Report
	Err        error
	ReviseFunc func(ctx context.Context, task *domain.Task) (*domain.Report, error)
}

// Revise implements domain.Reviser
func (m *MockReviser) Revise(ctx context.Context, task *domain.Task) (*domain.Report, error) {
	m.mu.Lock()
	m.CallCount++
	m.mu.Unlock()

	if m.ReviseFunc != nil {
		return m.ReviseFunc(ctx, task)
	}
	return m.Report, m.Err
}

// Calls returns how many times Revise ran.
func (m *MockReviser) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}
