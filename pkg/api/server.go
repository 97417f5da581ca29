package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weaverlabs/weaver/pkg/domain"
	"github.com/weaverlabs/weaver/pkg/observability"
	"github.com/weaverlabs/weaver/pkg/orchestrator"
)

// Server exposes the research workflow over HTTP.
type Server struct {
	coord    *orchestrator.Coordinator
	notifier *orchestrator.Notifier
	logger   observability.Logger
	engine   *gin.Engine
}

// NewServer builds the HTTP server and its routes.
func NewServer(coord *orchestrator.Coordinator, notifier *orchestrator.Notifier, logger observability.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		coord:    coord,
		notifier: notifier,
		logger:   logger,
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)
	s.engine.POST("/research", s.createResearch)
	s.engine.GET("/research/:id", s.getTask)
	s.engine.GET("/research/:id/status", s.getStatus)
	s.engine.GET("/research/:id/report", s.getReport)
	s.engine.GET("/research/:id/events", s.streamEvents)
	s.engine.DELETE("/research/:id", s.cancelTask)
}

// Handler returns the underlying http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info(context.Background(), "api server listening", map[string]interface{}{
		"addr": addr,
	})
	return s.engine.Run(addr)
}

type createResearchRequest struct {
	Topic        string   `json:"topic" binding:"required"`
	Subtopics    []string `json:"subtopics"`
	DepthLevel   int      `json:"depth_level"`
	Requirements string   `json:"requirements"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createResearch accepts a query, persists a pending task, and starts the
// workflow in the background. The response returns before any LLM work.
func (s *Server) createResearch(c *gin.Context) {
	var req createResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DepthLevel == 0 {
		req.DepthLevel = 2
	}

	query := domain.ResearchQuery{
		Topic:        req.Topic,
		Subtopics:    req.Subtopics,
		DepthLevel:   req.DepthLevel,
		Requirements: req.Requirements,
	}

	task, err := s.coord.CreateTask(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Fire and forget; the run outlives this request.
	go s.coord.Run(context.Background(), task.ID)

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": task.ID,
		"status":  task.Status,
	})
}

func (s *Server) getTask(c *gin.Context) {
	task, ok := s.loadTask(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, task)
}

// stageLabel maps lifecycle states to the human-readable stage names the
// UI shows.
func stageLabel(status domain.TaskStatus) string {
	switch status {
	case domain.TaskStatusPending:
		return "initializing"
	case domain.TaskStatusPlanning:
		return "planning_strategy"
	case domain.TaskStatusInProgress:
		return "gathering_data"
	case domain.TaskStatusReviewing:
		return "critiquing_draft"
	case domain.TaskStatusRevising:
		return "revising_draft"
	case domain.TaskStatusCompleted:
		return "finished"
	case domain.TaskStatusFailed:
		return "failed"
	default:
		return string(status)
	}
}

// plannedQueryCount reports how many search queries the plan holds; zero
// until planning has produced one.
func plannedQueryCount(task *domain.Task) int {
	if task.Plan == nil {
		return 0
	}
	return len(task.Plan.SearchQueries)
}

func (s *Server) getStatus(c *gin.Context) {
	task, ok := s.loadTask(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id": task.ID,
		"status":  task.Status,
		"stage":   stageLabel(task.Status),
		"progress": gin.H{
			"messages_logged": len(task.AgentLogs),
			"revisions":       task.RevisionCount,
			"search_queries":  plannedQueryCount(task),
		},
		"created_at": task.CreatedAt,
		"updated_at": task.UpdatedAt,
	})
}

func (s *Server) getReport(c *gin.Context) {
	task, ok := s.loadTask(c)
	if !ok {
		return
	}
	if task.CurrentReport == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report yet", "status": task.Status})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task_id": task.ID,
		"status":  task.Status,
		"report":  task.CurrentReport,
	})
}

func (s *Server) cancelTask(c *gin.Context) {
	id := c.Param("id")
	cancelled := s.coord.Cancel(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{
		"task_id":   id,
		"cancelled": cancelled,
	})
}

// streamEvents serves workflow events for one task as server-sent events.
// The stream ends when the task reaches a terminal status or the client
// disconnects. Events before the subscription are not replayed; clients
// needing history read the status endpoint first.
func (s *Server) streamEvents(c *gin.Context) {
	id := c.Param("id")
	task, err := s.coord.GetTask(c.Request.Context(), id)
	if err != nil {
		s.notFound(c, err)
		return
	}

	ch := make(chan orchestrator.Event, 64)
	var done atomic.Bool
	unregister := s.notifier.Register(orchestrator.ObserverFunc(func(e orchestrator.Event) {
		if done.Load() || e.TaskID != id {
			return
		}
		// Drop rather than block the workflow on a slow client.
		select {
		case ch <- e:
		default:
		}
	}))
	// Drop the subscription when the stream ends so finished clients do
	// not accumulate in the notifier.
	defer unregister()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	// Emit the current status first so late subscribers know where the
	// run stands.
	c.SSEvent(string(orchestrator.EventStatusUpdate), orchestrator.Event{
		Type:      orchestrator.EventStatusUpdate,
		TaskID:    id,
		Status:    task.Status,
		Timestamp: time.Now().UTC(),
	})
	c.Writer.Flush()

	if task.Status.Terminal() {
		done.Store(true)
		return
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case e := <-ch:
			c.SSEvent(string(e.Type), e)
			if e.Type == orchestrator.EventStatusUpdate && e.Status.Terminal() {
				done.Store(true)
				return false
			}
			return true
		case <-c.Request.Context().Done():
			done.Store(true)
			return false
		}
	})
}

func (s *Server) loadTask(c *gin.Context) (*domain.Task, bool) {
	task, err := s.coord.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.notFound(c, err)
		return nil, false
	}
	return task, true
}

func (s *Server) notFound(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
