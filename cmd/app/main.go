package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"companion-pipeline/internal/config"
	"companion-pipeline/internal/domain/model"
	"companion-pipeline/internal/domain/ports/adapter"
	gen "companion-pipeline/internal/infra/adapters/generation"
	"companion-pipeline/internal/infra/adapters/storage"
	"companion-pipeline/internal/infra/bus"
	pg "companion-pipeline/internal/infra/db/postgres"
	httpapi "companion-pipeline/internal/infra/http"
	"companion-pipeline/internal/infra/logging"
	"companion-pipeline/internal/infra/metrics"
	red "companion-pipeline/internal/infra/redis"
	"companion-pipeline/internal/infra/sched"
	"companion-pipeline/internal/infra/worker"
	"companion-pipeline/internal/infra/ws"
	"companion-pipeline/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop backend, relaxed auth checks)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	logging.Global = *logger
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, int32(cfg.Database.MaxConns))
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	}()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	queue := red.NewJobQueue(redisClient, cfg.Redis.QueueKey)
	limiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewJobRepo(pool)
	msgRepo := pg.NewMessageRepo(pool)
	accounting := pg.NewCreditRepo(pool, tm, map[model.OperationKind]int64{
		model.OpImageGeneration:   cfg.Billing.ImageCost,
		model.OpCompanionCreation: cfg.Billing.CompanionCost,
		model.OpChatMessage:       cfg.Billing.ChatCost,
	})

	// ---- Generation backends ----
	backends := adapter.Registry{}
	if cfg.Runtime.Dev && cfg.Backend.BaseURL == "" {
		noop := gen.NewNoopAdapter()
		backends[model.OpImageGeneration] = noop
		backends[model.OpCompanionCreation] = noop
		backends[model.OpChatMessage] = noop
		logger.Warn().Msg("generation backend: noop")
	} else {
		httpBackend, err := gen.NewHTTPAdapter(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.CallTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("generation backend")
		}
		backends[model.OpImageGeneration] = httpBackend
		backends[model.OpCompanionCreation] = httpBackend
		backends[model.OpChatMessage] = httpBackend
		if cfg.Backend.GeminiKey != "" {
			gem, err := gen.NewGeminiAdapter(ctx, cfg.Backend.GeminiKey, cfg.Backend.GeminiModel)
			if err != nil {
				logger.Fatal().Err(err).Msg("gemini backend")
			}
			backends[model.OpChatMessage] = gem
			logger.Info().Str("model", cfg.Backend.GeminiModel).Msg("chat backend: gemini")
		}
	}

	// ---- Artifact store ----
	var store adapter.ArtifactStore
	switch cfg.Storage.Kind {
	case "s3":
		store, err = storage.NewS3Store(ctx, &cfg.Storage)
	default:
		store, err = storage.NewFSStore(cfg.Storage.Dir)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("artifact store")
	}

	// ---- Notification bus ----
	eventBus := bus.New(cfg.Bus.BufferSize, logger)
	go eventBus.RunKeepAlive(ctx, cfg.Bus.KeepAlive)

	// ---- Use cases ----
	tracker := usecase.NewContextTracker(cfg.Context.IdleTTL, *logger)
	go tracker.StartJanitor(ctx, cfg.Context.IdleTTL/2)
	genUC := usecase.NewGenerationUseCase(jobRepo, msgRepo, queue, accounting, backends, tracker, tm, *logger)

	// ---- Workers ----
	pool2 := worker.NewPool(cfg.Worker.Count, *logger)
	pool2.Start(ctx)
	defer pool2.Stop()
	jobWorker := worker.NewJobWorker(
		jobRepo, queue, msgRepo, accounting, backends, store, eventBus, tracker,
		worker.PollPolicy{
			Interval: cfg.Backend.PollInterval,
			Attempts: cfg.Backend.PollAttempts,
			Budget:   cfg.Backend.PollBudget,
		},
		cfg.Worker.IdleInterval, *logger,
	)
	go jobWorker.Start(ctx, pool2)

	cleanup := sched.NewCleanupWorker(cfg.Worker.SweepEvery, cfg.Worker.Retention, jobRepo, *logger)
	go func() { _ = cleanup.Run(ctx) }()

	// ---- HTTP ----
	wsHandler := ws.NewHandler(eventBus, logger)
	srv := httpapi.NewServer(cfg, genUC, wsHandler, limiter, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
