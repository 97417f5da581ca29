package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/weaverlabs/weaver/internal/testutil"
	"github.com/weaverlabs/weaver/pkg/domain"
	"github.com/weaverlabs/weaver/pkg/observability"
	"github.com/weaverlabs/weaver/pkg/orchestrator"
	"github.com/weaverlabs/weaver/pkg/store"
)

var testLogger = observability.NewStructuredLogger("test")

type apiFixture struct {
	store  *store.MemoryStore
	coord  *orchestrator.Coordinator
	server *Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	memStore := store.NewMemoryStore()
	researcher := &testutil.MockResearcher{Report: testutil.NewTestReport("Draft")}
	critic := &testutil.MockCritic{Feedbacks: []domain.CritiqueFeedback{
		{OverallScore: 8.0, CritiqueRound: 1, Decision: domain.DecisionApprove},
	}}
	reviser := &testutil.MockReviser{Report: testutil.NewTestReport("Revised")}

	notifier := orchestrator.NewNotifier(testLogger)
	coord := orchestrator.NewCoordinator(memStore, researcher, critic, reviser,
		notifier, testLogger, nil, nil, orchestrator.DefaultConfig())

	return &apiFixture{
		store:  memStore,
		coord:  coord,
		server: NewServer(coord, notifier, testLogger),
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestServer_Health(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestServer_CreateResearch(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodPost, "/research", map[string]interface{}{
		"topic":       "go generics",
		"depth_level": 2,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}

	resp := decodeJSON(t, w)
	taskID, _ := resp["task_id"].(string)
	if taskID == "" {
		t.Fatal("response missing task_id")
	}

	// The workflow runs in the background; wait for the terminal state.
	ok := testutil.Eventually(t, 2*time.Second, func() bool {
		task, err := f.store.Get(testutil.NewTestContext(t), taskID)
		return err == nil && task.Status.Terminal()
	})
	if !ok {
		t.Fatal("workflow did not finish")
	}

	task, _ := f.store.Get(testutil.NewTestContext(t), taskID)
	if task.Status != domain.TaskStatusCompleted {
		t.Errorf("Status = %q, want completed", task.Status)
	}
}

func TestServer_CreateResearch_MissingTopic(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodPost, "/research", map[string]interface{}{
		"depth_level": 2,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestServer_GetStatus(t *testing.T) {
	f := newAPIFixture(t)
	ctx := testutil.NewTestContext(t)

	task, err := f.coord.CreateTask(ctx, testutil.NewTestQuery("topic"))
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	w := f.do(t, http.MethodGet, "/research/"+task.ID+"/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	resp := decodeJSON(t, w)
	if resp["stage"] != "initializing" {
		t.Errorf("stage = %v, want initializing", resp["stage"])
	}
	progress, ok := resp["progress"].(map[string]interface{})
	if !ok {
		t.Fatalf("progress missing: %v", resp)
	}
	for _, key := range []string{"messages_logged", "revisions", "search_queries"} {
		if _, ok := progress[key]; !ok {
			t.Errorf("progress missing %q", key)
		}
	}
	if progress["search_queries"] != float64(0) {
		t.Errorf("search_queries = %v, want 0 before planning", progress["search_queries"])
	}
}

func TestServer_GetStatus_CountsPlannedQueries(t *testing.T) {
	// search_queries reflects the plan's query list, not how many tool
	// calls have run so far.
	f := newAPIFixture(t)
	ctx := testutil.NewTestContext(t)

	task, err := f.coord.CreateTask(ctx, testutil.NewTestQuery("topic"))
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if err := f.store.SavePlan(ctx, task.ID, &domain.ResearchPlan{
		SearchQueries: []string{"q1", "q2", "q3"},
	}); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}
	if err := f.store.AppendToolCalls(ctx, task.ID, []domain.ToolCallRecord{
		{ToolName: "tavily_search", Query: "q1", Success: true},
	}); err != nil {
		t.Fatalf("AppendToolCalls failed: %v", err)
	}

	w := f.do(t, http.MethodGet, "/research/"+task.ID+"/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	progress, ok := decodeJSON(t, w)["progress"].(map[string]interface{})
	if !ok {
		t.Fatal("progress missing")
	}
	if progress["search_queries"] != float64(3) {
		t.Errorf("search_queries = %v, want 3", progress["search_queries"])
	}
}

func TestServer_GetStatus_NotFound(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/research/missing/status", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestServer_GetReport(t *testing.T) {
	f := newAPIFixture(t)
	ctx := testutil.NewTestContext(t)

	task, _ := f.coord.CreateTask(ctx, testutil.NewTestQuery("topic"))

	// No report yet.
	w := f.do(t, http.MethodGet, "/research/"+task.ID+"/report", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 before drafting", w.Code)
	}

	f.coord.Run(ctx, task.ID)

	w = f.do(t, http.MethodGet, "/research/"+task.ID+"/report", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	resp := decodeJSON(t, w)
	report, ok := resp["report"].(map[string]interface{})
	if !ok || report["title"] != "Draft" {
		t.Errorf("report = %v", resp["report"])
	}
}

func TestServer_Cancel(t *testing.T) {
	f := newAPIFixture(t)
	ctx := testutil.NewTestContext(t)

	task, _ := f.coord.CreateTask(ctx, testutil.NewTestQuery("topic"))

	w := f.do(t, http.MethodDelete, "/research/"+task.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp := decodeJSON(t, w); resp["cancelled"] != true {
		t.Errorf("cancelled = %v, want true", resp["cancelled"])
	}

	// A second cancel is a no-op.
	w = f.do(t, http.MethodDelete, "/research/"+task.ID, nil)
	if resp := decodeJSON(t, w); resp["cancelled"] != false {
		t.Errorf("second cancel = %v, want false", resp["cancelled"])
	}
}

func TestServer_StreamEvents_TerminalTaskClosesImmediately(t *testing.T) {
	f := newAPIFixture(t)
	ctx := testutil.NewTestContext(t)

	task, _ := f.coord.CreateTask(ctx, testutil.NewTestQuery("topic"))
	f.coord.Run(ctx, task.ID)

	w := f.do(t, http.MethodGet, "/research/"+task.ID+"/events", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if body == "" {
		t.Fatal("expected at least the initial status event")
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("status_update")) {
		t.Errorf("body missing status_update event: %q", body)
	}
}

func TestServer_StreamEvents_NotFound(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/research/missing/events", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
