package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heliowatt/permit-intake/internal/config"
	"github.com/heliowatt/permit-intake/internal/core/ports"
	"github.com/heliowatt/permit-intake/internal/core/usecase"
	"github.com/heliowatt/permit-intake/internal/infrastructure/extractor/pdftext"
	"github.com/heliowatt/permit-intake/internal/infrastructure/geocode/census"
	"github.com/heliowatt/permit-intake/internal/infrastructure/guidance/spreadsheet"
	"github.com/heliowatt/permit-intake/internal/infrastructure/llm/gemini"
	"github.com/heliowatt/permit-intake/internal/infrastructure/queue/nats"
	"github.com/heliowatt/permit-intake/internal/infrastructure/repository/postgres"
	"github.com/heliowatt/permit-intake/internal/infrastructure/resilience"
	"github.com/heliowatt/permit-intake/internal/infrastructure/source/sheetfetch"
	"github.com/heliowatt/permit-intake/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config

	Queue      ports.EventPublisher
	Projects   ports.ProjectRepository
	IntakeUC   ports.DocumentIntaker
	GuidanceUC ports.GuidanceService
	ProjectUC  ports.ProjectService
	NotifyUC   *usecase.NotifyUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	guidanceRepo := postgres.NewGuidanceRepository(db)
	if err := guidanceRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure guidance schema: %w", err)
	}
	projectRepo := postgres.NewProjectRepository(db)
	if err := projectRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure project schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	geminiClient := gemini.New(cfg.GeminiURL, cfg.GeminiAPIKey, gemini.Options{
		GenModel:           cfg.GeminiModel,
		VisionModel:        cfg.GeminiVisModel,
		ResilienceExecutor: executor,
	})
	resolver := census.New(cfg.CensusURL, census.Options{
		Benchmark:          cfg.CensusBenchmark,
		Vintage:            cfg.CensusVintage,
		RequestsPerSecond:  cfg.CensusRateRPS,
		ResilienceExecutor: executor,
	})
	fetcher := sheetfetch.New(cfg.SheetCSVURL, sheetfetch.Options{
		ResilienceExecutor: executor,
	})
	reader := spreadsheet.NewReader()
	extractor := pdftext.New()

	guidanceUC := usecase.NewGuidanceUseCase(guidanceRepo, fetcher, reader, geminiClient, logger)
	intakeUC := usecase.NewIntakeUseCase(
		projectRepo, storage, extractor, geminiClient,
		resolver, guidanceUC, queue, logger,
	)
	projectUC := usecase.NewProjectUseCase(projectRepo)
	notifyUC := usecase.NewNotifyUseCase(projectRepo, logger)

	return &App{
		Config: cfg,

		Queue:      queue,
		Projects:   projectRepo,
		IntakeUC:   intakeUC,
		GuidanceUC: guidanceUC,
		ProjectUC:  projectUC,
		NotifyUC:   notifyUC,

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
