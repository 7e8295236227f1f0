package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/forgeline/forgeline/internal/allocation"
	"github.com/forgeline/forgeline/internal/app"
	"github.com/forgeline/forgeline/internal/fulfillment"
	"github.com/forgeline/forgeline/internal/inventory"
	"github.com/forgeline/forgeline/internal/masterdata"
	"github.com/forgeline/forgeline/internal/observability"
	"github.com/forgeline/forgeline/internal/platform/cache"
	"github.com/forgeline/forgeline/internal/platform/db"
	"github.com/forgeline/forgeline/internal/procurement"
	"github.com/forgeline/forgeline/internal/sales"
	"github.com/forgeline/forgeline/internal/shared"
	"github.com/forgeline/forgeline/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{
		MaxConns:        cfg.PGMaxConns,
		MinConns:        cfg.PGMinConns,
		MaxConnLifetime: cfg.PGConnLifetime,
	})
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
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	activityLogger := shared.NewActivityLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	directory := masterdata.NewDirectory(pool)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, activityLogger, idempotencyStore, metrics)

	reportCache := fulfillment.NewReportCache(redisClient, cfg.AvailabilityCacheTTL)
	fulfillmentRepo := fulfillment.NewRepository(pool)
	fulfillmentService := fulfillment.NewService(fulfillmentRepo, directory, activityLogger, reportCache)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, fulfillmentService, directory,
		inventoryService, activityLogger, idempotencyStore,
		procurement.PlannerConfig{OffsetOpenDrafts: cfg.OffsetOpenDrafts})

	allocationRepo := allocation.NewRepository(pool)
	allocationService := allocation.NewService(allocationRepo, activityLogger)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, fulfillmentService, inventoryService, directory, jobClient, activityLogger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		FulfillmentHandler: fulfillment.NewHandler(logger, fulfillmentService),
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		AllocationHandler:  allocation.NewHandler(logger, allocationService),
		SalesHandler:       sales.NewHandler(logger, salesService),
		MasterDataHandler:  masterdata.NewHandler(logger, directory),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
