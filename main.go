// Package main provides the main entry point for the affiliate attribution and billing engine
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aimarket/affiliate-engine/app/handlers"
	"github.com/aimarket/affiliate-engine/app/middleware"
	"github.com/aimarket/affiliate-engine/app/notifier"
	"github.com/aimarket/affiliate-engine/app/router"
	businessflow "github.com/aimarket/affiliate-engine/business_flow"
	"github.com/aimarket/affiliate-engine/config"
	"github.com/aimarket/affiliate-engine/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting affiliate engine...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	configureLogging(cfg.Logging)

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Expose Prometheus metrics on a separate listener
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics)
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// configureLogging routes the standard logger into a rotating file when the
// configuration asks for file output.
func configureLogging(cfg config.LoggingConfig) {
	if cfg.FilePath == "" || cfg.Output == "stdout" {
		return
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	if cfg.Output == "both" {
		log.SetOutput(io.MultiWriter(os.Stdout, rotated))
		return
	}
	log.SetOutput(rotated)
}

// serveMetrics runs the Prometheus scrape endpoint on its own port so the
// public API surface never exposes internals.
func serveMetrics(cfg config.MetricsConfig) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	address := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Metrics listening on %s%s", address, cfg.Path)
	if err := http.ListenAndServe(address, mux); err != nil {
		log.Printf("Metrics server stopped: %v", err)
	}
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, cfg.Cache.CleanupInterval)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Initialize repositories
	companyRepo := repository.NewCompanyRepository(db)
	refCodeRepo := repository.NewRefCodeRepository(db)
	clickRepo := repository.NewClickRepository(db)
	conversionRepo := repository.NewConversionRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	webhookSettingsRepo := repository.NewWebhookSettingsRepository(db)
	webhookDeliveryLogRepo := repository.NewWebhookDeliveryLogRepository(db)
	linkSettingsRepo := repository.NewLinkSettingsRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Outbound webhook delivery pool. It doubles as the event publisher for
	// the conversion and invoice flows.
	hooks := notifier.New(webhookSettingsRepo, webhookDeliveryLogRepo, cfg.Webhook)
	stopNotifier := hooks.Start(context.Background())
	stopFuncs = append(stopFuncs, stopNotifier)

	// Initialize flows
	clickFlow := businessflow.NewClickFlow(
		clickRepo,
		refCodeRepo,
		auditRepo,
		db,
		rc,
		&cfg.Cache,
		&cfg.Tracking,
	)

	conversionFlow := businessflow.NewConversionFlow(
		conversionRepo,
		refCodeRepo,
		clickRepo,
		invoiceRepo,
		auditRepo,
		db,
		hooks,
	)

	ledgerFlow := businessflow.NewLedgerFlow(
		transactionRepo,
		invoiceRepo,
		conversionRepo,
		companyRepo,
		auditRepo,
		db,
		rc,
		&cfg.Cache,
	)

	invoiceFlow := businessflow.NewInvoiceFlow(
		invoiceRepo,
		payoutRepo,
		conversionRepo,
		transactionRepo,
		companyRepo,
		auditRepo,
		db,
		rc,
		&cfg.Cache,
		hooks,
	)

	refCodeFlow := businessflow.NewRefCodeFlow(
		refCodeRepo,
		clickRepo,
		conversionRepo,
		companyRepo,
		auditRepo,
		db,
	)

	reportFlow := businessflow.NewReportFlow(
		clickRepo,
		conversionRepo,
		companyRepo,
		db,
	)

	linkBuilderFlow := businessflow.NewLinkBuilderFlow(
		linkSettingsRepo,
		refCodeRepo,
		companyRepo,
	)

	settingsFlow := businessflow.NewSettingsFlow(
		webhookSettingsRepo,
		webhookDeliveryLogRepo,
		linkSettingsRepo,
		companyRepo,
		auditRepo,
		db,
	)

	// Initialize handlers
	clickHandler := handlers.NewClickHandler(clickFlow)
	conversionHandler := handlers.NewConversionHandler(conversionFlow)
	ledgerHandler := handlers.NewLedgerHandler(ledgerFlow)
	billingHandler := handlers.NewBillingHandler(invoiceFlow)
	refCodeHandler := handlers.NewRefCodeHandler(refCodeFlow)
	reportHandler := handlers.NewReportHandler(reportFlow)
	linkHandler := handlers.NewLinkHandler(linkBuilderFlow)
	settingsHandler := handlers.NewSettingsHandler(settingsFlow)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.Security)

	// Initialize router
	appRouter := router.NewFiberRouter(
		cfg,
		clickHandler,
		conversionHandler,
		ledgerHandler,
		billingHandler,
		refCodeHandler,
		reportHandler,
		linkHandler,
		settingsHandler,
		authMiddleware,
	)

	// Create application struct from FiberRouter
	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
