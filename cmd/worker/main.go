package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/layerledger/layerledger/internal/app"
	"github.com/layerledger/layerledger/internal/ledger"
	"github.com/layerledger/layerledger/internal/platform/cache"
	"github.com/layerledger/layerledger/internal/platform/db"
	"github.com/layerledger/layerledger/internal/profit"
	"github.com/layerledger/layerledger/internal/valuation"
	"github.com/layerledger/layerledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	// The warm-up reads the shared ledger; the embedded store is
	// process-local and has nothing to warm from another process.
	if cfg.UseMemoryStore() {
		logger.Error("worker requires PG_DSN")
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		_ = redisClient.Close()
	}()

	ledgerRepo := ledger.NewRepository(pool)
	calculator := valuation.NewCalculator(ledgerRepo, cfg.AgingBoundaryDays)
	reportCache := profit.NewCache(redisClient, cfg.ReportCacheTTL)

	warmupTask, err := jobs.NewSnapshotWarmupTask(time.Now().UTC())
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSnapshotWarmup, Handler: jobs.NewSnapshotWarmupHandler(logger, ledgerRepo, calculator, reportCache)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: warmupTask},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
