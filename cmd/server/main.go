package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dispatch/internal/app"
	"dispatch/internal/config"
	"dispatch/internal/handler"
	"dispatch/internal/jobs"
	internalRedis "dispatch/internal/redis"
	"dispatch/internal/repository/postgres"
	"dispatch/internal/service"
)

func main() {
	// Load .env if present, then configuration from the environment.
	_ = godotenv.Load()
	cfg := config.Load()

	logger := newLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize New Relic")
		} else {
			logger.Info().Str("app", cfg.NewRelic.AppName).Msg("New Relic enabled")
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	logger.Info().Msg("connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	logger.Info().Msg("connected to Redis")

	// Wire dependencies.
	server, requeueJob := wireServer(db, redisClient, nrApp, cfg, logger)

	if err := requeueJob.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start requeue job")
	}
	defer requeueJob.Stop()

	// Start server in goroutine.
	go func() {
		logger.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout)
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// wireServer wires all dependencies and returns the HTTP server and the
// background requeue job.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config, logger zerolog.Logger) (*http.Server, *jobs.RequeueJob) {
	// Initialize Redis stores.
	feedStore := internalRedis.NewFeedStore(redisClient)
	poolStore := internalRedis.NewPoolStore(redisClient)

	// Initialize repositories.
	customerRepo := postgres.NewCustomerRepository(db)
	riderRepo := postgres.NewRiderRepository(db)
	orderRepo := postgres.NewOrderRepository(db)
	deliveryRepo := postgres.NewDeliveryRepository(db)

	// Initialize services.
	notificationService := service.NewNotificationService(logger)
	riderShare := decimal.NewFromFloat(cfg.Dispatch.RiderShare)
	dispatchService := service.NewDispatchService(orderRepo, deliveryRepo, riderRepo, feedStore, poolStore, notificationService, riderShare, logger)
	orderService := service.NewOrderService(orderRepo, deliveryRepo, customerRepo, feedStore, poolStore, notificationService, logger)
	deliveryService := service.NewDeliveryService(orderRepo, deliveryRepo, feedStore, notificationService, logger)

	requeueJob := jobs.NewRequeueJob(orderRepo, dispatchService, cfg.Dispatch.RequeueSpec, cfg.Dispatch.RequeueAge, logger)

	// Initialize handlers.
	customerHandler := handler.NewCustomerHandler(customerRepo)
	orderHandler := handler.NewOrderHandler(orderService, deliveryRepo)
	riderHandler := handler.NewRiderHandler(dispatchService, orderService, riderRepo)
	deliveryHandler := handler.NewDeliveryHandler(deliveryService)
	watchHandler := handler.NewWatchHandler(orderRepo, deliveryRepo, riderRepo, feedStore, handler.WatchConfig{
		PollInterval:   cfg.Watch.PollInterval,
		ResubscribeMin: cfg.Watch.ResubscribeMin,
		ResubscribeMax: cfg.Watch.ResubscribeMax,
	}, logger)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		OrderHandler:    orderHandler,
		RiderHandler:    riderHandler,
		DeliveryHandler: deliveryHandler,
		CustomerHandler: customerHandler,
		WatchHandler:    watchHandler,
		RedisClient:     redisClient,
		NewRelicApp:     nrApp,
	})

	// Create HTTP server. WriteTimeout stays zero: the watch endpoints hold
	// the response open for the life of the order.
	return &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
	}, requeueJob
}
