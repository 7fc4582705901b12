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

	"github.com/pharmadesk/pharmadesk/internal/app"
	"github.com/pharmadesk/pharmadesk/internal/catalog"
	"github.com/pharmadesk/pharmadesk/internal/catalog/categories"
	"github.com/pharmadesk/pharmadesk/internal/catalog/customers"
	"github.com/pharmadesk/pharmadesk/internal/catalog/products"
	"github.com/pharmadesk/pharmadesk/internal/catalog/suppliers"
	"github.com/pharmadesk/pharmadesk/internal/hr"
	"github.com/pharmadesk/pharmadesk/internal/importer"
	"github.com/pharmadesk/pharmadesk/internal/inventory"
	"github.com/pharmadesk/pharmadesk/internal/ledger"
	"github.com/pharmadesk/pharmadesk/internal/observability"
	"github.com/pharmadesk/pharmadesk/internal/platform/cache"
	"github.com/pharmadesk/pharmadesk/internal/platform/db"
	"github.com/pharmadesk/pharmadesk/internal/purchases"
	"github.com/pharmadesk/pharmadesk/internal/reports"
	"github.com/pharmadesk/pharmadesk/internal/sales"
	"github.com/pharmadesk/pharmadesk/internal/shared"
	"github.com/pharmadesk/pharmadesk/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, report cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	applier := inventory.NewApplier(cfg.AllowNegativeStock)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, metrics)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, applier, auditLogger, metrics)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	productService := products.NewService(products.NewRepository(pool))
	catalogHandler := catalog.NewHandler(
		products.NewHandler(logger, productService),
		categories.NewHandler(logger, categories.NewService(categories.NewRepository(pool))),
		suppliers.NewHandler(logger, suppliers.NewService(suppliers.NewRepository(pool))),
		customers.NewHandler(logger, customers.NewService(customers.NewRepository(pool))),
	)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, applier, auditLogger, metrics, sales.Config{
		RestockOnReturn: cfg.RestockOnReturn,
	})
	salesHandler := sales.NewHandler(logger, salesService)

	purchasesRepo := purchases.NewRepository(pool)
	purchasesService := purchases.NewService(purchasesRepo, applier, auditLogger, metrics)
	purchasesHandler := purchases.NewHandler(logger, purchasesService)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := reports.NewService(reports.NewRepository(pool), inventoryRepo, reportCache)
	reportsHandler := reports.NewHandler(logger, reportService)

	importHandler := importer.NewHandler(importer.NewService(logger, productService))

	hrRepo := hr.NewRepository(pool)
	hrService := hr.NewService(hrRepo, auditLogger, metrics)
	hrHandler := hr.NewHandler(logger, hrService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("job client init", slog.Any("error", err))
	}
	defer func() {
		if jobClient != nil {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LedgerHandler:    ledgerHandler,
		InventoryHandler: inventoryHandler,
		CatalogHandler:   catalogHandler,
		SalesHandler:     salesHandler,
		PurchasesHandler: purchasesHandler,
		ReportsHandler:   reportsHandler,
		ImportHandler:    importHandler,
		HRHandler:        hrHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
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
