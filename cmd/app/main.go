package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"render-orchestrator/internal/config"
	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/adapter"
	alertAdapters "render-orchestrator/internal/infra/adapters/alert"
	"render-orchestrator/internal/infra/adapters/render"
	visionAdapters "render-orchestrator/internal/infra/adapters/vision"
	"render-orchestrator/internal/infra/cache"
	pg "render-orchestrator/internal/infra/db/postgres"
	"render-orchestrator/internal/infra/logging"
	"render-orchestrator/internal/infra/metrics"
	"render-orchestrator/internal/infra/monitor"
	"render-orchestrator/internal/infra/progress"
	red "render-orchestrator/internal/infra/redis"
	"render-orchestrator/internal/infra/sched"
	"render-orchestrator/internal/infra/web"
	"render-orchestrator/internal/infra/worker"
	"render-orchestrator/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop oracle/alerts when unconfigured)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	// expose the custom collectors before /metrics is mounted
	metrics.MustRegister()

	// ---- Postgres ----
	pool := pg.MustConnectPostgres(cfg.Database.URL)
	defer pool.Close()
	txManager := pg.NewTxManager(pool)

	jobRepo := pg.NewJobRepo(pool, txManager)
	readinessRepo := pg.NewReadinessRepo(pool, txManager)
	sampleRepo := pg.NewSampleRepo(pool, txManager)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	dailyCounter := red.NewDailyCounter(redisClient)
	tickLocker := red.NewLocker(redisClient)

	// ---- Alerts ----
	var alerts adapter.AlertNotifier
	if cfg.Alert.TelegramToken != "" && cfg.Alert.OperatorChatID != 0 {
		alerts, err = alertAdapters.NewTelegramNotifier(cfg.Alert.TelegramToken, cfg.Alert.OperatorChatID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram notifier")
		}
	} else {
		logger.Warn().Msg("operator alerts not configured; using noop notifier")
		alerts = alertAdapters.NewNoopNotifier()
	}

	// ---- Vision oracle (OpenAI -> Gemini fallback) ----
	var providers []adapter.VisionOracleAdapter
	if cfg.Vision.OpenAIKey != "" {
		oa, err := visionAdapters.NewOpenAIOracle(cfg.Vision.OpenAIKey, cfg.Vision.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai oracle")
		}
		providers = append(providers, oa)
	}
	if cfg.Vision.GeminiKey != "" {
		ga, err := visionAdapters.NewGeminiOracle(ctx, cfg.Vision.GeminiKey, cfg.Vision.GeminiURL, "")
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini oracle")
		}
		providers = append(providers, ga)
	}
	var oracle adapter.VisionOracleAdapter
	switch {
	case len(providers) > 0:
		oracle = visionAdapters.NewMultiOracle(logger, providers...)
	case cfg.Runtime.Dev:
		logger.Warn().Msg("no vision provider configured; dev mode auto-approves everything")
		oracle = visionAdapters.NewNoopOracle()
	default:
		logger.Fatal().Msg("no vision provider configured: set vision.openai_key or vision.gemini_key")
	}

	// ---- Render backend ----
	backend, err := render.NewComfyClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("render backend")
	}

	// ---- Core engine ----
	profiles := usecase.NewProfileStore(cfg.GPU.ProfileAlpha)
	estimator := usecase.NewResourceEstimator(profiles, cfg.GPU.MaxConcurrent, logger)
	perfMonitor := monitor.NewPerformanceMonitor(sampleRepo, profiles, cfg.GPU.BudgetMB, logger)

	genCache := cache.New(cfg.Cache.MaxEntries, cfg.Cache.MaxBytes)
	events := progress.NewChannel(0, logger)
	go events.Run(ctx)

	workers := estimator.MaxConcurrent(cfg.GPU.BudgetMB)
	processor := worker.NewProcessor(backend, genCache, events, perfMonitor, jobRepo, worker.Config{
		PollInterval:   cfg.Backend.PollInterval,
		ImageTimeout:   cfg.Backend.ImageTimeout,
		VideoTimeout:   cfg.Backend.VideoTimeout,
		RequestTimeout: cfg.Backend.RequestTimeout,
		OutputDir:      cfg.Backend.OutputDir,
		Workers:        workers,
	}, logger)

	readinessUC := usecase.NewReadinessUseCase(readinessRepo, txManager, alerts, cfg.Replenish.BreakerThreshold, logger)
	gate := usecase.NewQualityGate(oracle, cfg.Quality.SimilarityFloor, cfg.Quality.ClarityFloor, logger)
	pipeline := usecase.NewVerdictPipeline(gate, readinessUC, cfg.Quality.ReferenceDir, logger)
	submitUC := usecase.NewSubmissionUseCase(processor, estimator, readinessUC, cfg.GPU.BudgetMB, logger)

	// terminal jobs are scored off the render workers so a slow oracle
	// never stalls dispatch
	verdictPool := worker.NewPool(workers, logger)
	verdictPool.Start(ctx)
	processor.SetCompletionHook(func(job model.Job) {
		if err := verdictPool.Submit(func(taskCtx context.Context) error {
			pipeline.Handle(taskCtx, job)
			return nil
		}); err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("verdict pool saturated")
			pipeline.Handle(ctx, job)
		}
	})
	processor.Start(ctx)

	// ---- Replenishment control loop ----
	replenisher := sched.NewReplenishmentWorker(
		cfg.Replenish,
		readinessUC,
		submitUC,
		processor,
		sched.NewTemplateParamsProvider(cfg.Replenish),
		dailyCounter,
		tickLocker,
		alerts,
		workers,
		logger,
	)
	go func() { _ = replenisher.Run(ctx) }()

	// ---- Operator API ----
	auth := web.NewAuthManager(cfg.Web.JWTSecret, !cfg.Runtime.Dev, cfg.Web.SessionTTL)
	srv := web.NewServer(submitUC, readinessUC, events, backend, genCache, perfMonitor, replenisher, auth, cfg.Web.APIKey, logger)
	go func() {
		if err := srv.Serve(ctx, fmt.Sprintf(":%d", cfg.Web.Port)); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	processor.Stop()
	verdictPool.Stop()
}
