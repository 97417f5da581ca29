package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/weaverlabs/weaver/pkg/domain"
)

const tasksCollection = "research_tasks"

// MongoStore is a MongoDB-backed TaskStore. Task identifiers are ObjectID
// hex strings assigned on insert.
type MongoStore struct {
	client *mongo.Client
	tasks  *mongo.Collection
}

// NewMongoStore connects to MongoDB and verifies the connection with a ping.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoStore{
		client: client,
		tasks:  client.Database(database).Collection(tasksCollection),
	}, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// mongoTask mirrors domain.Task with an ObjectID primary key so the driver
// can assign and decode identifiers natively.
type mongoTask struct {
	ID               primitive.ObjectID        `bson:"_id,omitempty"`
	Query            domain.ResearchQuery      `bson:"query"`
	Status           domain.TaskStatus         `bson:"status"`
	Plan             *domain.ResearchPlan      `bson:"plan,omitempty"`
	RawSearchResults []domain.Source           `bson:"raw_search_results"`
	CurrentReport    *domain.Report            `bson:"current_report,omitempty"`
	FeedbackHistory  []domain.CritiqueFeedback `bson:"feedback_history"`
	AgentLogs        []domain.AgentLogEntry    `bson:"agent_logs"`
	ToolsCalled      []domain.ToolCallRecord   `bson:"tools_called"`
	RevisionCount    int                       `bson:"revision_count"`
	MaxRevisions     int                       `bson:"max_revisions"`
	CreatedAt        time.Time                 `bson:"created_at"`
	UpdatedAt        time.Time                 `bson:"updated_at"`
	CompletedAt      *time.Time                `bson:"completed_at,omitempty"`
}

func toMongoTask(t *domain.Task) *mongoTask {
	return &mongoTask{
		Query:            t.Query,
		Status:           t.Status,
		Plan:             t.Plan,
		RawSearchResults: t.RawSearchResults,
		CurrentReport:    t.CurrentReport,
		FeedbackHistory:  t.FeedbackHistory,
		AgentLogs:        t.AgentLogs,
		ToolsCalled:      t.ToolsCalled,
		RevisionCount:    t.RevisionCount,
		MaxRevisions:     t.MaxRevisions,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		CompletedAt:      t.CompletedAt,
	}
}

func (m *mongoTask) toDomain() *domain.Task {
	return &domain.Task{
		ID:               m.ID.Hex(),
		Query:            m.Query,
		Status:           m.Status,
		Plan:             m.Plan,
		RawSearchResults: m.RawSearchResults,
		CurrentReport:    m.CurrentReport,
		FeedbackHistory:  m.FeedbackHistory,
		AgentLogs:        m.AgentLogs,
		ToolsCalled:      m.ToolsCalled,
		RevisionCount:    m.RevisionCount,
		MaxRevisions:     m.MaxRevisions,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		CompletedAt:      m.CompletedAt,
	}
}

// Create persists a new task and returns its assigned identifier
func (s *MongoStore) Create(ctx context.Context, task *domain.Task) (string, error) {
	doc := toMongoTask(task)
	doc.UpdatedAt = time.Now().UTC()

	result, err := s.tasks.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to insert task: %w", err)
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", result.InsertedID)
	}
	return oid.Hex(), nil
}

// Get loads a task by identifier
func (s *MongoStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var doc mongoTask
	err = s.tasks.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	return doc.toDomain(), nil
}

// UpdateStatus sets the lifecycle status
func (s *MongoStore) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	set := bson.M{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if status.Terminal() {
		set["completed_at"] = time.Now().UTC()
	}
	return s.updateOne(ctx, id, bson.M{"$set": set})
}

// SavePlan stores the research plan
func (s *MongoStore) SavePlan(ctx context.Context, id string, plan *domain.ResearchPlan) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{
		"plan":       plan,
		"updated_at": time.Now().UTC(),
	}})
}

// SaveReport stores the current report
func (s *MongoStore) SaveReport(ctx context.Context, id string, report *domain.Report) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{
		"current_report": report,
		"updated_at":     time.Now().UTC(),
	}})
}

// SaveFeedback appends a critique to the feedback history
func (s *MongoStore) SaveFeedback(ctx context.Context, id string, feedback domain.CritiqueFeedback) error {
	return s.updateOne(ctx, id, bson.M{
		"$push": bson.M{"feedback_history": feedback},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

// SaveRawResults stores the flattened deduplicated source dump
func (s *MongoStore) SaveRawResults(ctx context.Context, id string, sources []domain.Source) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{
		"raw_search_results": sources,
		"updated_at":         time.Now().UTC(),
	}})
}

// IncrementRevision bumps the revision counter by one
func (s *MongoStore) IncrementRevision(ctx context.Context, id string) error {
	return s.updateOne(ctx, id, bson.M{
		"$inc": bson.M{"revision_count": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
}

// AppendLog appends an agent log entry
func (s *MongoStore) AppendLog(ctx context.Context, id string, entry domain.AgentLogEntry) error {
	return s.updateOne(ctx, id, bson.M{
		"$push": bson.M{"agent_logs": entry},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

// AppendToolCalls records external lookup attempts on the task.
func (s *MongoStore) AppendToolCalls(ctx context.Context, id string, records []domain.ToolCallRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.updateOne(ctx, id, bson.M{
		"$push": bson.M{"tools_called": bson.M{"$each": records}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

func (s *MongoStore) updateOne(ctx context.Context, id string, update bson.M) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	result, err := s.tasks.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, domain.ErrTaskNotFound
	}
	return oid, nil
}
