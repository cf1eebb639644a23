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

	"github.com/zimam-erp/zimam-erp/internal/accounting"
	"github.com/zimam-erp/zimam-erp/internal/app"
	"github.com/zimam-erp/zimam-erp/internal/forecast"
	"github.com/zimam-erp/zimam-erp/internal/inventory"
	"github.com/zimam-erp/zimam-erp/internal/observability"
	"github.com/zimam-erp/zimam-erp/internal/platform/cache"
	"github.com/zimam-erp/zimam-erp/internal/platform/db"
	"github.com/zimam-erp/zimam-erp/internal/procurement"
	"github.com/zimam-erp/zimam-erp/internal/sales"
	"github.com/zimam-erp/zimam-erp/internal/shared"
	"github.com/zimam-erp/zimam-erp/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	procurementRepo := procurement.NewRepository(dbpool)
	procurementService := procurement.NewService(procurementRepo, auditLogger, idempotencyStore, logger)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, procurementService, metrics, logger, inventory.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
	})
	procurementService.BindInventory(inventoryService)

	salesRepo := sales.NewRepository(dbpool)
	salesService := sales.NewService(salesRepo, inventoryService, auditLogger, idempotencyStore, logger)

	forecastRepo := forecast.NewRepository(dbpool)
	forecastCache := forecast.NewCache(redisClient, cfg.ForecastCacheTTL)
	forecastService := forecast.NewService(forecastRepo, inventoryRepo, forecastCache, logger)

	accountingRepo := accounting.NewRepository(dbpool)
	accountingService := accounting.NewService(accountingRepo, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		SalesHandler:       sales.NewHandler(logger, salesService),
		ForecastHandler:    forecast.NewHandler(logger, forecastService),
		AccountingHandler:  accounting.NewHandler(logger, accountingService),
		JobHandler:         jobs.NewHandler(inspector, jobClient, logger),
		Pool:               dbpool,
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
