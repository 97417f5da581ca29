package domain

import (
	"context"
)

// GenerateOptions configures a single LLM generation call.
type GenerateOptions struct {
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
}

// SchemaHint tells the structured generation call what shape to produce.
// The example is embedded in the system prompt so the model emits the
// exact structure the target type decodes from.
type SchemaHint struct {
	Name    string
	Example string
}

// LLMClient defines the interface for language model interactions
type LLMClient interface {
	// Generate performs a plain text completion
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateStructured performs a completion constrained to JSON and
	// decodes it into out. A response that cannot be decoded into the
	// declared shape fails with a *ValidationError.
	GenerateStructured(ctx context.Context, prompt string, schema SchemaHint, opts GenerateOptions, out interface{}) error
}

// SearchTool is a ranked source lookup provider.
type SearchTool interface {
	// Name returns the tool name used in audit records
	Name() string

	// Search returns ranked source snippets for a query
	Search(ctx context.Context, query string, maxResults int) ([]Source, error)
}

// Researcher plans (if the task has no plan yet), gathers sources, and
// drafts the first report, mutating the task's plan, raw results, and
// tool-call audit trail along the way.
type Researcher interface {
	Research(ctx context.Context, task *Task) (*Report, error)
}

// Critic evaluates the task's current report and produces structured
// feedback. Fails with ErrNoReport if the task has no report.
type Critic interface {
	Critique(ctx context.Context, task *Task) (*CritiqueFeedback, error)
}

// Reviser produces an improved report from the task's current report and
// the latest feedback entry. Fails with ErrNoReport or ErrNoFeedback when
// its inputs are missing.
type Reviser interface {
	Revise(ctx context.Context, task *Task) (*Report, error)
}

// TaskStore is the durable keyed-record service holding task state. All
// operations are independent, non-transactional read-modify-write; no
// atomicity is assumed across fields. Unknown identifiers surface as
// ErrTaskNotFound.
type TaskStore interface {
	// Create persists a new task and returns its assigned identifier
	Create(ctx context.Context, task *Task) (string, error)

	// Get loads a task by identifier
	Get(ctx context.Context, id string) (*Task, error)

	// UpdateStatus sets the lifecycle status
	UpdateStatus(ctx context.Context, id string, status TaskStatus) error

	// SavePlan stores the research plan
	SavePlan(ctx context.Context, id string, plan *ResearchPlan) error

	// SaveReport stores the current report
	SaveReport(ctx context.Context, id string, report *Report) error

	// SaveFeedback appends a critique to the feedback history
	SaveFeedback(ctx context.Context, id string, feedback CritiqueFeedback) error

	// SaveRawResults stores the flattened deduplicated source dump
	SaveRawResults(ctx context.Context, id string, sources []Source) error

	// IncrementRevision bumps the revision counter by one
	IncrementRevision(ctx context.Context, id string) error

	// AppendLog appends an agent log entry
	AppendLog(ctx context.Context, id string, entry AgentLogEntry) error

	// AppendToolCalls records external lookup attempts on the task
	AppendToolCalls(ctx context.Context, id string, records []ToolCallRecord) error
}
