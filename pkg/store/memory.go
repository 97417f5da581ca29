package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weaverlabs/weaver/pkg/domain"
)

// MemoryStore is an in-memory TaskStore for single-process deployments and
// tests. Tasks are deep-copied on the way in and out so callers never share
// mutable state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task
}

// NewMemoryStore creates an empty in-memory task store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*domain.Task),
	}
}

// Create persists a new task and returns its assigned identifier
func (s *MemoryStore) Create(ctx context.Context, task *domain.Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := task.ID
	if id == "" {
		id = uuid.NewString()
	}

	stored := copyTask(task)
	stored.ID = id
	stored.UpdatedAt = time.Now().UTC()
	s.tasks[id] = stored

	return id, nil
}

// Get loads a task by identifier
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}

	return copyTask(task), nil
}

// UpdateStatus sets the lifecycle status
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}

	task.Status = status
	now := time.Now().UTC()
	task.UpdatedAt = now
	if status.Terminal() {
		task.CompletedAt = &now
	}
	return nil
}

// SavePlan stores the research plan
func (s *MemoryStore) SavePlan(ctx context.Context, id string, plan *domain.ResearchPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}

	task.Plan = copyPlan(plan)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveReport stores the current report
func (s *MemoryStore) SaveReport(ctx context.Context, id string, report *domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}

	task.CurrentReport = copyReport(report)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveFeedback appends a critique to the feedback history
func (s *MemoryStore) SaveFeedback(ctx context.Context, id string, feedback domain.CritiqueFeedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}

	task.FeedbackHistory = append(task.FeedbackHistory, feedback)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveRawResults stores the flattened deduplicated source dump
func (s *MemoryStore) SaveRawResults(ctx context.Context, id string, sources []domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}

	task.RawSearchResults = append([]domain.Source(nil), sources...)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// IncrementRevision bumps the revision counter by one
func (s *MemoryStore) IncrementRevision(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}

	task.RevisionCount++
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendLog appends an agent log entry
func (s *MemoryStore) AppendLog(ctx context.Context, id string, entry domain.AgentLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}

	task.AgentLogs = append(task.AgentLogs, entry)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendToolCalls records external lookup attempts on the task.
func (s *MemoryStore) AppendToolCalls(ctx context.Context, id string, records []domain.ToolCallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}

	task.ToolsCalled = append(task.ToolsCalled, records...)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func copyTask(t *domain.Task) *domain.Task {
	if t == nil {
		return nil
	}
	dup := *t
	dup.Plan = copyPlan(t.Plan)
	dup.CurrentReport = copyReport(t.CurrentReport)
	dup.RawSearchResults = append([]domain.Source(nil), t.RawSearchResults...)
	dup.FeedbackHistory = append([]domain.CritiqueFeedback(nil), t.FeedbackHistory...)
	dup.AgentLogs = append([]domain.AgentLogEntry(nil), t.AgentLogs...)
	dup.ToolsCalled = append([]domain.ToolCallRecord(nil), t.ToolsCalled...)
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		dup.CompletedAt = &completed
	}
	return &dup
}

func copyPlan(p *domain.ResearchPlan) *domain.ResearchPlan {
	if p == nil {
		return nil
	}
	dup := *p
	dup.Subtopics = append([]string(nil), p.Subtopics...)
	dup.SearchQueries = append([]string(nil), p.SearchQueries...)
	dup.RequiredDataPoints = append([]string(nil), p.RequiredDataPoints...)
	return &dup
}

func copyReport(r *domain.Report) *domain.Report {
	if r == nil {
		return nil
	}
	dup := *r
	dup.Sections = make([]domain.ReportSection, len(r.Sections))
	for i, sec := range r.Sections {
		dup.Sections[i] = sec
		dup.Sections[i].SourceIDs = append([]domain.SourceID(nil), sec.SourceIDs...)
	}
	dup.References = append([]domain.Source(nil), r.References...)
	if r.Metadata != nil {
		dup.Metadata = make(map[string]interface{}, len(r.Metadata))
		for k, v := range r.Metadata {
			dup.Metadata[k] = v
		}
	}
	return &dup
}
