package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mintresearch/agent-engine/config"
	"github.com/mintresearch/agent-engine/internal/observability"
	"github.com/mintresearch/agent-engine/repositories"
	"github.com/mintresearch/agent-engine/repositories/filestore"
	"github.com/mintresearch/agent-engine/repositories/httpstore"
	"github.com/mintresearch/agent-engine/repositories/postgres"
	"github.com/mintresearch/agent-engine/repositories/sqlite"
	"github.com/mintresearch/agent-engine/services/collaborators"
	"github.com/mintresearch/agent-engine/services/interaction"
	"github.com/mintresearch/agent-engine/services/pipeline"
	"github.com/mintresearch/agent-engine/services/rules"
	"github.com/mintresearch/agent-engine/services/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const defaultStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Events  *observability.EventLog

	// Memory store
	RepoFactory *postgres.RepositoryFactory
	Memory      repositories.MemoryRepository

	// Collaborators
	Generator pipeline.TextGenerator
	Tool      pipeline.ToolRunner

	// Rules
	RuleLoader    *rules.Loader
	RuleValidator *rules.Validator
	Rules         *rules.Service
	RuleWatcher   *rules.Watcher

	// Pipeline
	Orchestrator *pipeline.Orchestrator
	Interaction  *interaction.Service
	Runtime      *runtime.Service
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	if err := deps.initEvents(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize event log: %w", err)
	}

	if err := deps.initMemory(ctx, cfg); err != nil {
		deps.stopEvents()
		return nil, fmt.Errorf("failed to initialize memory store: %w", err)
	}

	if err := deps.initCollaborators(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize collaborators: %w", err)
	}

	if err := deps.initRules(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize rules: %w", err)
	}

	deps.initPipeline(cfg)
	deps.Runtime = runtime.NewService(cfg.Runtime, deps.Events, logger)

	logger.Info("all dependencies initialized successfully",
		zap.String("memory_backend", cfg.Memory.Backend),
		zap.String("llm_backend", cfg.Collaborators.LLM.Backend),
		zap.String("tool_backend", cfg.Collaborators.Tool.Backend),
		zap.String("policy_enforcement", cfg.Interaction.PolicyEnforcement))
	return deps, nil
}

// initEvents starts the per-unit event log
func (d *Dependencies) initEvents(cfg *config.Config) error {
	events := observability.NewEventLog(cfg.Runtime.EventLogDir, d.Logger, d.Metrics, observability.EventLogConfig{
		BufferSize:  cfg.Observability.EventBufferSize,
		WorkerCount: cfg.Observability.EventWorkers,
	})
	if err := events.Start(); err != nil {
		return err
	}
	d.Events = events
	return nil
}

// initMemory opens the configured memory backend
func (d *Dependencies) initMemory(ctx context.Context, cfg *config.Config) error {
	switch cfg.Memory.Backend {
	case config.MemoryBackendFile:
		repo, err := filestore.NewMemoryRepository(cfg.Memory.File, d.Logger)
		if err != nil {
			return err
		}
		d.Memory = repo

	case config.MemoryBackendSQLite:
		repo, err := sqlite.NewMemoryRepository(cfg.Memory.SQLitePath, d.Logger)
		if err != nil {
			return err
		}
		d.Memory = repo

	case config.MemoryBackendPostgres:
		factory, err := postgres.NewRepositoryFactory(ctx, cfg.Database, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		d.RepoFactory = factory
		d.Memory = factory.NewMemoryRepository()
		d.Logger.Info("database connection established",
			zap.String("connection", cfg.Database.LogString()))

	case config.MemoryBackendHTTP:
		client := &http.Client{Timeout: cfg.Memory.Timeout}
		d.Memory = httpstore.NewMemoryRepository(cfg.Memory.URL, client, d.Logger)

	default:
		return fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}

	d.Logger.Info("memory store initialized", zap.String("backend", cfg.Memory.Backend))
	return nil
}

// initCollaborators selects the text generation and tool backends
func (d *Dependencies) initCollaborators(cfg *config.Config) error {
	llm := cfg.Collaborators.LLM
	switch llm.Backend {
	case config.LLMBackendMock:
		d.Generator = collaborators.NewMockGenerator()
	case config.LLMBackendHTTP:
		d.Generator = collaborators.NewHTTPGenerator(llm.URL, &http.Client{Timeout: llm.Timeout}, d.Logger)
	default:
		return fmt.Errorf("unknown llm backend %q", llm.Backend)
	}

	tool := cfg.Collaborators.Tool
	switch tool.Backend {
	case config.ToolBackendLocal:
		d.Tool = collaborators.NewShellRunner(tool.Shell, d.Logger)
	case config.ToolBackendHTTP:
		d.Tool = collaborators.NewHTTPToolRunner(tool.URL, &http.Client{Timeout: tool.Timeout}, d.Logger)
	default:
		return fmt.Errorf("unknown tool backend %q", tool.Backend)
	}

	return nil
}

// initRules wires the loader, validator and rules service, and starts the
// watcher when enabled
func (d *Dependencies) initRules(cfg *config.Config) error {
	d.RuleLoader = rules.NewLoader(cfg.Rules.Dir, d.Logger)
	d.RuleValidator = rules.NewValidator(d.RuleLoader, d.Metrics, d.Logger)
	d.Rules = rules.NewService(d.RuleLoader, d.RuleValidator, d.Events, d.Metrics, d.Logger)

	if !cfg.Rules.Watch {
		return nil
	}

	watcher, err := rules.NewWatcher(d.RuleLoader, cfg.Rules.WatchDebounce, d.Metrics, d.Events, d.Logger, nil)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	d.RuleWatcher = watcher
	return nil
}

// initPipeline builds the stage set, orchestrator and request façade
func (d *Dependencies) initPipeline(cfg *config.Config) {
	stages := pipeline.NewStages(
		pipeline.Collaborators{
			Generator: d.Generator,
			Tool:      d.Tool,
			Memory:    d.Memory,
		},
		pipeline.Timeouts{
			LLM:    cfg.Collaborators.LLM.Timeout,
			Tool:   cfg.Collaborators.Tool.Timeout,
			Memory: cfg.Memory.Timeout,
		},
		d.Metrics,
		d.Logger,
	)

	d.Orchestrator = pipeline.NewOrchestrator(stages, d.Metrics, d.Logger)
	d.Interaction = interaction.NewService(
		d.Orchestrator,
		d.RuleValidator,
		cfg.Interaction.PolicyEnforcement,
		d.Events,
		d.Metrics,
		d.Logger,
	)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RuleWatcher != nil {
		if err := d.RuleWatcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop rule watcher: %w", err))
		}
	}

	if d.Memory != nil {
		if err := d.Memory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close memory store: %w", err))
		} else {
			d.Logger.Info("memory store closed")
		}
	}

	timeout := defaultStopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if d.Events != nil {
		if err := d.Events.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop event log: %w", err))
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

func (d *Dependencies) stopEvents() {
	if d.Events != nil {
		_ = d.Events.Stop(defaultStopTimeout)
	}
}
