package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/layerledger/layerledger/internal/app"
	"github.com/layerledger/layerledger/internal/catalog"
	"github.com/layerledger/layerledger/internal/costing"
	"github.com/layerledger/layerledger/internal/ledger"
	"github.com/layerledger/layerledger/internal/platform/cache"
	"github.com/layerledger/layerledger/internal/platform/db"
	"github.com/layerledger/layerledger/internal/profit"
	reporthttp "github.com/layerledger/layerledger/internal/report/http"
	"github.com/layerledger/layerledger/internal/valuation"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	policy, err := costing.ParsePolicy(cfg.CostingPolicy)
	if err != nil {
		logger.Error("parse costing policy", slog.Any("error", err))
		os.Exit(1)
	}

	var (
		ledgerRepo  ledger.RepositoryPort
		catalogRepo catalog.RepositoryPort
		salesRepo   interface {
			profit.SaleLineReader
			profit.SaleLineRecorder
		}
	)
	if cfg.UseMemoryStore() {
		logger.Warn("no PG_DSN configured, using embedded in-memory store")
		ledgerRepo = ledger.NewMemoryStore()
		catalogRepo = catalog.NewMemoryRepository()
		salesRepo = profit.NewMemorySales()
	} else {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		ledgerRepo = ledger.NewRepository(pool)
		catalogRepo = catalog.NewRepository(pool)
		salesRepo = profit.NewRepository(pool)
	}

	reportCache := profit.NewCache(nil, cfg.ReportCacheTTL)
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, report cache disabled", slog.Any("error", err))
	} else {
		reportCache = profit.NewCache(redisClient, cfg.ReportCacheTTL)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	catalogSvc := catalog.NewService(catalogRepo)
	store := ledger.NewStore(ledgerRepo, reportCache, logger)
	engine := costing.NewEngine(ledgerRepo, catalogSvc, reportCache, policy, logger)
	calculator := valuation.NewCalculator(ledgerRepo, cfg.AgingBoundaryDays)
	aggregator := profit.NewAggregator(salesRepo, ledgerRepo, catalogSvc, reportCache, profit.Thresholds{
		ClassA: decimal.NewFromFloat(cfg.ABCClassACutoff),
		ClassB: decimal.NewFromFloat(cfg.ABCClassBCutoff),
	}, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		LedgerHandler:  ledger.NewHandler(logger, store),
		CostingHandler: costing.NewHandler(logger, engine, salesRepo),
		ReportHandler:  reporthttp.NewHandler(logger, calculator, store, aggregator, catalogSvc),
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.AppAddr), slog.String("policy", string(policy)))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
