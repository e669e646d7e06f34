package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"
	"github.com/planwell/calendar-sync/internal/app"
	"github.com/planwell/calendar-sync/internal/calendar"
	"github.com/planwell/calendar-sync/internal/config"
	"github.com/planwell/calendar-sync/internal/repository"
	"github.com/planwell/calendar-sync/internal/service"
	"github.com/planwell/calendar-sync/internal/tasks"
	"github.com/planwell/calendar-sync/pkg/crypto"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	infra, err := app.NewInfrastructure(ctx, *cfg)
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}
	logger := infra.Logger()

	cipher, err := crypto.NewCipher(cfg.Sync.TokenKey)
	if err != nil {
		logger.Fatal("Failed to initialize token cipher", zap.Error(err))
	}

	metrics, err := service.NewMetrics()
	if err != nil {
		logger.Fatal("Failed to initialize sync metrics", zap.Error(err))
	}

	repos := repository.NewRepositories(infra.Postgres())

	cal := calendar.NewGoogleClient(
		cfg.Google.ClientID,
		cfg.Google.ClientSecret,
		cfg.Google.RedirectURL,
	)

	credentials := service.NewCredentialService(
		repos.Credential,
		repos.Mapping,
		cal,
		cipher,
		logger,
	)

	throttle := service.NewThrottle(infra.Redis(), cfg.Sync.CallBudget, cfg.Sync.CallBudgetWindow.Duration)
	engine := service.NewSyncEngine(repos.Mapping, cal, throttle, logger)

	orchestrator := service.NewOrchestrator(service.OrchestratorParams{
		Credentials: credentials,
		Planning:    repos.Planning,
		Mappings:    repos.Mapping,
		Engine:      engine,
		Calendar:    cal,
		Policy:      service.NewPolicy(cfg.Sync.BackoffBase.Duration, cfg.Sync.SyncMaxAttempts, cfg.Sync.DeleteMaxAttempts),
		Locker:      service.NewSyncLocker(infra.Redis(), cfg.Sync.LockTTL.Duration),
		Enqueuer:    infra.TaskClient(),
		Notifier:    infra.Notifier(),
		Metrics:     metrics,
		Logger:      logger,
		BatchSize:   cfg.Sync.BatchSize,
		BatchDelay:  cfg.Sync.BatchDelay.Duration,
	})

	redisOpt := app.RedisClientOpt(cfg)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Sync.WorkerConcurrency,
		Queues: map[string]int{
			tasks.QueueSync:        6,
			tasks.QueueMaintenance: 3,
		},
	})

	scheduler, err := tasks.NewScheduler(redisOpt, cfg.Sync.ReconcileInterval.Duration)
	if err != nil {
		logger.Fatal("Failed to initialize scheduler", zap.Error(err))
	}

	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	mux := tasks.NewServeMux(tasks.NewHandlers(orchestrator, credentials, logger))

	logger.Info("Worker starting", zap.Int("concurrency", cfg.Sync.WorkerConcurrency))

	// Run blocks until SIGINT/SIGTERM and drains in-flight tasks
	if err := srv.Run(mux); err != nil {
		scheduler.Shutdown()
		logger.Fatal("Worker failed", zap.Error(err))
	}

	scheduler.Shutdown()

	if err := infra.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	logger.Info("Worker exited successfully")
}
