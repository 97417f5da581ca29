package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/weaverlabs/weaver/pkg/agents"
	"github.com/weaverlabs/weaver/pkg/api"
	"github.com/weaverlabs/weaver/pkg/config"
	"github.com/weaverlabs/weaver/pkg/domain"
	"github.com/weaverlabs/weaver/pkg/llm"
	"github.com/weaverlabs/weaver/pkg/observability"
	"github.com/weaverlabs/weaver/pkg/orchestrator"
	"github.com/weaverlabs/weaver/pkg/store"
	"github.com/weaverlabs/weaver/pkg/tools"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"

	telemetry *observability.Telemetry
	metrics   *observability.Metrics
)

func main() {
	var (
		configPath = flag.String("config", "configs/default.yaml", "Path to configuration file")
		version    = flag.Bool("version", false, "Show version information")
		apiMode    = flag.Bool("api", false, "Run in API server mode")
		topic      = flag.String("topic", "", "Research topic (for one-shot CLI mode)")
		depth      = flag.Int("depth", 2, "Research depth level 1-5 (CLI mode)")
	)
	flag.Parse()

	if *version {
		fmt.Printf("Weaver\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	cfg := config.LoadOrDefault(*configPath)

	ctx := context.Background()
	if err := initObservability(cfg); err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}
	defer shutdownObservability(ctx)

	log.Printf("Starting Weaver v%s (built: %s)", Version, BuildTime)

	if err := run(ctx, cfg, *apiMode, *topic, *depth); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}

func initObservability(cfg *config.Config) error {
	telConfig := &observability.TelemetryConfig{
		ServiceName:    "weaver",
		ServiceVersion: Version,
		Environment:    getEnvironment(),
		OTLPEndpoint:   cfg.Observability.Tracing.Endpoint,
		PrometheusPort: cfg.Observability.Metrics.Port,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		EnableTracing:  cfg.Observability.Tracing.Enabled,
		EnableMetrics:  cfg.Observability.Metrics.Enabled,
	}

	var err error
	telemetry, err = observability.NewTelemetry(telConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if cfg.Observability.Metrics.Enabled {
		metrics, err = observability.NewMetrics(telemetry.Meter())
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	return nil
}

func shutdownObservability(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}
}

func run(ctx context.Context, cfg *config.Config, apiMode bool, topic string, depth int) error {
	logger := newLogger(cfg)

	taskStore, cleanup, err := newTaskStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		return err
	}

	searchTools, err := newSearchTools(cfg)
	if err != nil {
		return err
	}

	researcher := agents.NewResearchAgent(llmClient, searchTools, logger.WithComponent("researcher"), telemetry,
		agents.ResearcherConfig{
			MaxSources:      cfg.Research.MaxSources,
			SnippetLimit:    cfg.Research.SourceSnippetLimit,
			ResultsPerQuery: cfg.Tools.WebSearch.MaxResults,
		})
	critic := agents.NewCriticAgent(llmClient, logger.WithComponent("critic"))
	reviser := agents.NewReviserAgent(llmClient, logger.WithComponent("reviser"))

	notifier := orchestrator.NewNotifier(logger.WithComponent("notifier"))
	coordinator := orchestrator.NewCoordinator(
		taskStore, researcher, critic, reviser,
		notifier, logger.WithComponent("coordinator"), telemetry, metrics,
		orchestrator.Config{
			QualityThreshold: cfg.Research.QualityThreshold,
			MaxRevisionLoops: cfg.Research.MaxRevisionLoops,
		})

	if apiMode || cfg.API.Enabled {
		server := api.NewServer(coordinator, notifier, logger.WithComponent("api"))
		return server.Run(fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))
	}
	return runOnce(ctx, cfg, coordinator, notifier, topic, depth)
}

func newLogger(cfg *config.Config) *observability.StructuredLogger {
	logger := observability.NewStructuredLogger("weaver")
	switch cfg.Observability.Logging.Level {
	case "debug":
		logger = logger.WithLevel(observability.LogLevelDebug)
	case "warn":
		logger = logger.WithLevel(observability.LogLevelWarn)
	case "error":
		logger = logger.WithLevel(observability.LogLevelError)
	}
	return logger
}

func newTaskStore(ctx context.Context, cfg *config.Config) (domain.TaskStore, func(), error) {
	switch cfg.Store.Type {
	case "mongo":
		mongoStore, err := store.NewMongoStore(ctx, cfg.Store.URI, cfg.Store.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open mongo store: %w", err)
		}
		cleanup := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoStore.Close(closeCtx)
		}
		return mongoStore, cleanup, nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}

func newLLMClient(cfg *config.Config) (domain.LLMClient, error) {
	if cfg.LLM.Groq.APIKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY is not set")
	}

	timeout, err := time.ParseDuration(cfg.LLM.Groq.Timeout)
	if err != nil {
		timeout = 2 * time.Minute
	}

	groq := llm.NewGroqClient(cfg.LLM.Groq.BaseURL, cfg.LLM.Groq.APIKey, cfg.LLM.Groq.Model,
		&llm.GroqOptions{
			Temperature: cfg.LLM.Groq.Temperature,
			MaxTokens:   cfg.LLM.Groq.MaxTokens,
			Timeout:     timeout,
		})

	if telemetry != nil {
		instrumented, err := llm.NewInstrumentedLLMClient(groq, telemetry, cfg.LLM.Groq.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to instrument llm client: %w", err)
		}
		return instrumented, nil
	}
	return groq, nil
}

func newSearchTools(cfg *config.Config) ([]domain.SearchTool, error) {
	registry := tools.NewRegistry()

	if cfg.Tools.WebSearch.Enabled {
		if cfg.Tools.WebSearch.APIKey != "" {
			if err := registry.Register(tools.NewTavilyTool("", cfg.Tools.WebSearch.APIKey)); err != nil {
				return nil, err
			}
		} else {
			log.Println("TAVILY_API_KEY not set, falling back to DuckDuckGo")
			if err := registry.Register(tools.NewDuckDuckGoTool("")); err != nil {
				return nil, err
			}
		}
	}
	if cfg.Tools.Wikipedia.Enabled {
		if err := registry.Register(tools.NewWikipediaTool("", cfg.Tools.Wikipedia.UserAgent)); err != nil {
			return nil, err
		}
	}

	searchTools := registry.List()
	if len(searchTools) == 0 {
		return nil, fmt.Errorf("no search tools enabled")
	}
	return searchTools, nil
}

// runOnce executes a single research workflow and prints the final report.
func runOnce(ctx context.Context, cfg *config.Config, coordinator *orchestrator.Coordinator, notifier *orchestrator.Notifier, topic string, depth int) error {
	if topic == "" {
		return fmt.Errorf("no research topic provided, use -topic")
	}

	timeout, err := time.ParseDuration(cfg.Research.Timeout)
	if err != nil {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	// Mirror progress to stderr while the workflow runs.
	unregister := notifier.Register(orchestrator.ObserverFunc(func(e orchestrator.Event) {
		switch e.Type {
		case orchestrator.EventStatusUpdate:
			fmt.Fprintf(os.Stderr, "[%s] status: %s\n", e.Timestamp.Format("15:04:05"), e.Status)
		case orchestrator.EventLogMessage:
			fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", e.Timestamp.Format("15:04:05"), e.Agent, e.Message)
		}
	}))
	defer unregister()

	task, err := coordinator.CreateTask(ctx, domain.ResearchQuery{
		Topic:      topic,
		DepthLevel: depth,
	})
	if err != nil {
		return err
	}

	startTime := time.Now()
	coordinator.Run(ctx, task.ID)

	final, err := coordinator.GetTask(ctx, task.ID)
	if err != nil {
		return err
	}
	if final.Status != domain.TaskStatusCompleted || final.CurrentReport == nil {
		return fmt.Errorf("research did not complete, final status: %s", final.Status)
	}

	printReport(final, time.Since(startTime))
	return nil
}

func printReport(task *domain.Task, elapsed time.Duration) {
	report := task.CurrentReport

	fmt.Println("\n=== Research Report ===")
	fmt.Printf("Title: %s\n", report.Title)
	fmt.Printf("\nAbstract:\n%s\n", report.Abstract)

	for _, section := range report.Sections {
		fmt.Printf("\n## %s\n%s\n", section.Title, section.Content)
	}

	fmt.Printf("\nConclusion:\n%s\n", report.Conclusion)

	if len(report.References) > 0 {
		fmt.Println("\nReferences:")
		for i, ref := range report.References {
			fmt.Printf("%d. %s", i+1, ref.Title)
			if ref.URL != "" {
				fmt.Printf(" (%s)", ref.URL)
			}
			fmt.Println()
		}
	}

	fmt.Printf("\nRevisions: %d\n", task.RevisionCount)
	if fb := task.LatestFeedback(); fb != nil {
		fmt.Printf("Final critique score: %.1f/10\n", fb.OverallScore)
	}
	fmt.Printf("Duration: %s\n", elapsed)
}

func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
