package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/adapters/output"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/adapters/worker"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/config"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/usecase"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/extractor"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/extractor/pdftext"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/extractor/plaintext"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/llm/ollama"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/prompts"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/queue/nats"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/repository/postgres"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/resilience"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/storage/localfs"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/observability/logging"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue    *nats.Queue
	Repo     *postgres.InvoiceRepository
	Storage  *localfs.Storage
	Prompts  *prompts.Registry
	Workflow *usecase.WorkflowEngine
	Batches  *worker.Handler

	MetricsRegistry *prometheus.Registry
	HTTPMetrics     *metrics.HTTPServerMetrics

	closeFn func()
}

// New wires every collaborator for the named service ("api" or "worker").
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewInvoiceRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{
		BatchSubject:       cfg.NATSBatchSubject,
		ProgressSubject:    cfg.NATSProgressSubject,
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	registry, err := prompts.Load(cfg.PromptsDir)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	textExtractor := extractor.NewRouter(
		map[string]ports.TextExtractor{"pdf": pdftext.NewExtractor(0)},
		plaintext.NewExtractor(),
	)

	// The engine owns the retry budget; the model call only gets a breaker.
	breakerCfg := resilience.DefaultConfig()
	breakerCfg.RetryMaxAttempts = 1
	llm, err := ollama.NewExtractor(
		ollama.New(cfg.OllamaURL, cfg.OllamaModel, time.Duration(cfg.OllamaTimeoutSeconds)*time.Second),
		registry,
		textExtractor,
		ollama.ExtractorOptions{
			RequestsPerMinute: cfg.RequestsPerMinute,
			Executor:          resilience.NewExecutor(breakerCfg),
		},
	)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init extractor: %w", err)
	}

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	workflowMetrics := metrics.NewWorkflowMetrics(service, metricsRegistry)
	httpMetrics := metrics.NewHTTPServerMetrics(service, metricsRegistry)

	var sink ports.OutputAdapter = output.NewRepositoryOutput(repo)
	if cfg.ArchiveRecords {
		sink = output.NewTee(sink, output.NewArchiveOutput(storage, "records"))
	}

	var archive ports.ObjectStorage
	if cfg.ArchiveOriginals {
		archive = storage
	}

	engine := usecase.NewWorkflowEngine(
		llm,
		sink,
		usecase.NewPromptSelector(registry),
		resilience.NewExecutor(resilience.DefaultConfig()),
		usecase.WorkflowEngineOptions{
			Archive: archive,
			Observers: []ports.ProgressObserver{
				logging.NewProgressLogger(slog.Default()),
				queue,
			},
			Metrics:        workflowMetrics,
			MaxConcurrency: cfg.MaxConcurrency,
		},
	)

	defaultMode, err := domain.ParseProcessingMode(cfg.DefaultMode)
	if err != nil {
		slog.Warn("default_mode_invalid", "mode", cfg.DefaultMode, "error", err)
		defaultMode = domain.ModeBatch
	}
	batches := worker.NewHandler(engine, storage, worker.Options{
		DefaultMode:    defaultMode,
		MaxRetries:     cfg.MaxRetries,
		TimeoutSeconds: cfg.TimeoutSeconds,
		AutoSave:       cfg.AutoSave,
		SupportedTypes: cfg.SupportedTypes,
		MaxFileSize:    cfg.MaxFileSizeBytes(),
		ReportPrefix:   "reports",
	})

	return &App{
		Config:   cfg,
		Queue:    queue,
		Repo:     repo,
		Storage:  storage,
		Prompts:  registry,
		Workflow: engine,
		Batches:  batches,

		MetricsRegistry: metricsRegistry,
		HTTPMetrics:     httpMetrics,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
