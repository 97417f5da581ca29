package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TaskStatus represents the lifecycle state of a research task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusPlanning   TaskStatus = "planning"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReviewing  TaskStatus = "reviewing"
	TaskStatusRevising   TaskStatus = "revising"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// statusRank orders the forward path of the state machine.
var statusRank = map[TaskStatus]int{
	TaskStatusPending:    0,
	TaskStatusPlanning:   1,
	TaskStatusInProgress: 2,
	TaskStatusReviewing:  3,
	TaskStatusRevising:   4,
	TaskStatusCompleted:  5,
	TaskStatusFailed:     5,
}

// CanTransitionTo reports whether moving from s to next is a legal state
// machine step. Transitions are monotonic along the forward path, except
// that revising may cycle back to reviewing, and failed is reachable from
// any non-terminal state.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == TaskStatusFailed {
		return true
	}
	if s == TaskStatusRevising && next == TaskStatusReviewing {
		return true
	}
	curRank, ok := statusRank[s]
	if !ok {
		return false
	}
	nextRank, ok := statusRank[next]
	if !ok {
		return false
	}
	return nextRank > curRank
}

// AgentType identifies which agent produced a log entry or artifact
type AgentType string

const (
	AgentPlanner    AgentType = "planner"
	AgentResearcher AgentType = "researcher"
	AgentCritic     AgentType = "critic"
	AgentReviser    AgentType = "reviser"
)

// ResearchQuery is the immutable user request that seeds a task.
type ResearchQuery struct {
	Topic        string   `json:"topic" bson:"topic"`
	Subtopics    []string `json:"subtopics" bson:"subtopics"`
	DepthLevel   int      `json:"depth_level" bson:"depth_level"`
	Requirements string   `json:"requirements,omitempty" bson:"requirements,omitempty"`
}

// Validate checks the query against its documented bounds.
func (q ResearchQuery) Validate() error {
	if q.Topic == "" {
		return fmt.Errorf("query topic is required")
	}
	if q.DepthLevel < 1 || q.DepthLevel > 5 {
		return fmt.Errorf("depth_level must be between 1 and 5, got %d", q.DepthLevel)
	}
	return nil
}

// ResearchPlan is the search strategy generated before gathering begins.
// It is produced once and never regenerated by later revisions.
type ResearchPlan struct {
	MainTopic          string   `json:"main_topic" bson:"main_topic"`
	Subtopics          []string `json:"subtopics" bson:"subtopics"`
	SearchQueries      []string `json:"search_queries" bson:"search_queries"`
	RequiredDataPoints []string `json:"required_data_points" bson:"required_data_points"`
}

// SourceID is a source identifier. Upstream providers and LLM output may
// emit it as a string or a number; decoding coerces any scalar to a string.
type SourceID string

// UnmarshalJSON accepts strings, numbers, bools, and null.
func (id *SourceID) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case nil:
		*id = ""
	case string:
		*id = SourceID(val)
	case float64:
		// JSON numbers decode as float64; keep integers compact.
		if val == float64(int64(val)) {
			*id = SourceID(strconv.FormatInt(int64(val), 10))
		} else {
			*id = SourceID(strconv.FormatFloat(val, 'f', -1, 64))
		}
	case bool:
		*id = SourceID(strconv.FormatBool(val))
	default:
		return fmt.Errorf("source id must be a scalar, got %T", v)
	}
	return nil
}

// Source is one piece of gathered evidence from a search provider.
type Source struct {
	ID               SourceID `json:"id,omitempty" bson:"id,omitempty"`
	Title            string   `json:"title" bson:"title"`
	URL              string   `json:"url,omitempty" bson:"url,omitempty"`
	Content          string   `json:"content" bson:"content"`
	RelevanceScore   float64  `json:"relevance_score" bson:"relevance_score"`
	CredibilityScore float64  `json:"credibility_score" bson:"credibility_score"`
}

// DedupeSourcesByURL merges sources keyed by URL: the first occurrence of
// each URL wins and ordering follows first appearance. Sources without a
// URL cannot be keyed and are dropped.
func DedupeSourcesByURL(sources []Source) []Source {
	seen := make(map[string]struct{}, len(sources))
	unique := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.URL == "" {
			continue
		}
		if _, ok := seen[s.URL]; ok {
			continue
		}
		seen[s.URL] = struct{}{}
		unique = append(unique, s)
	}
	return unique
}

// ToolCallRecord is an append-only audit entry for one external lookup
// attempt, including failures.
type ToolCallRecord struct {
	ToolName    string    `json:"tool_name" bson:"tool_name"`
	Query       string    `json:"query" bson:"query"`
	ResultCount int       `json:"result_count" bson:"result_count"`
	Success     bool      `json:"success" bson:"success"`
	DurationMS  float64   `json:"duration_ms" bson:"duration_ms"`
	Error       string    `json:"error,omitempty" bson:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}

// ReportSection is one chapter of a report.
type ReportSection struct {
	Title     string     `json:"title" bson:"title"`
	Content   string     `json:"content" bson:"content"`
	SourceIDs []SourceID `json:"source_ids" bson:"source_ids"`
}

// Metadata keys stamped on reports by the drafting and revision steps.
const (
	MetaGeneratedBy       = "generated_by"
	MetaSourceCount       = "source_count"
	MetaRevisionNumber    = "revision_number"
	MetaLastCritiqueScore = "last_critique_score"
	MetaRevisedBy         = "revised_by"
)

// Report is the research artifact. Each drafting or revision step produces
// a new instance; the task holds only the latest one.
type Report struct {
	Title      string                 `json:"title" bson:"title"`
	Abstract   string                 `json:"abstract" bson:"abstract"`
	Sections   []ReportSection        `json:"sections" bson:"sections"`
	Conclusion string                 `json:"conclusion" bson:"conclusion"`
	References []Source               `json:"references" bson:"references"`
	Metadata   map[string]interface{} `json:"metadata" bson:"metadata"`
}

// RevisionNumber returns the revision stamp from metadata. Drafts without a
// stamp count as revision 1. JSON and BSON round-trips widen numbers to
// float64 or the int variants, so all of them are accepted.
func (r *Report) RevisionNumber() int {
	if r == nil || r.Metadata == nil {
		return 1
	}
	switch v := r.Metadata[MetaRevisionNumber].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return 1
}

// Critique decisions. The decision field is informational: the quality gate
// is driven by the numeric score, never by this value.
const (
	DecisionApprove = "approve"
	DecisionRevise  = "revise"
)

// CritiqueFeedback is the structured output of one critique round.
// Immutable once produced; appended to the task's feedback history.
type CritiqueFeedback struct {
	OverallScore          float64  `json:"overall_score" bson:"overall_score"`
	CritiqueRound         int      `json:"critique_round" bson:"critique_round"`
	Strengths             []string `json:"strengths" bson:"strengths"`
	Weaknesses            []string `json:"weaknesses" bson:"weaknesses"`
	MissingInformation    []string `json:"missing_information" bson:"missing_information"`
	ActionableSuggestions []string `json:"actionable_suggestions" bson:"actionable_suggestions"`
	Decision              string   `json:"decision" bson:"decision"`
}

// AgentLogEntry is one line of the append-only agent audit trail.
type AgentLogEntry struct {
	Agent     AgentType `json:"agent_type" bson:"agent_type"`
	Step      string    `json:"step_name" bson:"step_name"`
	Message   string    `json:"message" bson:"message"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// DefaultMaxRevisions is the informational revision cap stored on new
// tasks. The orchestrator's configured loop budget is the authoritative
// bound for loop termination.
const DefaultMaxRevisions = 3

// Task is the aggregate root for one research job. The identifier is
// assigned by the store on creation and immutable afterwards. The
// orchestrator owns the task exclusively during a run; all other access is
// read-only through the store.
type Task struct {
	ID               string             `json:"id,omitempty" bson:"_id,omitempty"`
	Query            ResearchQuery      `json:"query" bson:"query"`
	Status           TaskStatus         `json:"status" bson:"status"`
	Plan             *ResearchPlan      `json:"plan,omitempty" bson:"plan,omitempty"`
	RawSearchResults []Source           `json:"raw_search_results" bson:"raw_search_results"`
	CurrentReport    *Report            `json:"current_report,omitempty" bson:"current_report,omitempty"`
	FeedbackHistory  []CritiqueFeedback `json:"feedback_history" bson:"feedback_history"`
	AgentLogs        []AgentLogEntry    `json:"agent_logs" bson:"agent_logs"`
	ToolsCalled      []ToolCallRecord   `json:"tools_called" bson:"tools_called"`
	RevisionCount    int                `json:"revision_count" bson:"revision_count"`
	MaxRevisions     int                `json:"max_revisions" bson:"max_revisions"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" bson:"updated_at"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// NewTask creates a pending task for the given query. The ID is left empty
// for the store to assign.
func NewTask(query ResearchQuery) *Task {
	now := time.Now().UTC()
	return &Task{
		Query:        query,
		Status:       TaskStatusPending,
		MaxRevisions: DefaultMaxRevisions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// LatestFeedback returns the most recent critique, or nil if none exists.
func (t *Task) LatestFeedback() *CritiqueFeedback {
	if len(t.FeedbackHistory) == 0 {
		return nil
	}
	return &t.FeedbackHistory[len(t.FeedbackHistory)-1]
}
