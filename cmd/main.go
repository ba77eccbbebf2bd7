/**
 * @description
 * This is the main entry point for the subscription-service.
 * It initializes and wires together all the components of the application:
 * configuration, database connection, the reminder delivery producer, the
 * redis rate limiter, the repository, the reminder scheduler, the forecast
 * engine, the cron jobs and the HTTP router. Finally it starts the HTTP
 * server and the cron scheduler and waits for a shutdown signal.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/subtrack/subscription-service/internal/api"
	"github.com/subtrack/subscription-service/internal/app"
	"github.com/subtrack/subscription-service/internal/config"
	"github.com/subtrack/subscription-service/internal/store"
	"github.com/subtrack/subscription-service/pkg/currencyclient"
	"github.com/subtrack/subscription-service/pkg/rabbitmq"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env if present, then configuration from environment variables
	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Establish connection to the PostgreSQL database
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	if err := store.EnsureSchema(ctx, dbpool); err != nil {
		logger.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	// Reminder delivery transport
	producer, err := rabbitmq.NewReminderProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	logger.Info("reminder delivery producer connected")

	// Redis-backed rate limiter; absent Redis the limiter fails open
	var redisClient redis.UniversalClient
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("unable to parse redis URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	} else {
		logger.Warn("REDIS_URL not set, rate limiting disabled")
	}
	limiter := api.NewRedisRateLimiter(redisClient, "subtrack:rate_limit", logger)

	// Initialize application layers
	repository := store.NewRepository(dbpool)
	reminders := app.NewReminderScheduler(producer, logger, loc)
	forecast := app.NewForecastEngine(repository, logger)
	service := app.NewService(repository, reminders, forecast, logger)

	rateClient := currencyclient.NewClient(cfg.ExchangeRateAPIURL)
	jobs := app.NewJobs(repository, reminders, forecast, rateClient, logger, cfg.ExpiryGraceDays)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	handler := api.NewHandler(service)
	router := api.NewRouter(handler, cfg.JWKSURL, limiter)

	// Configure and start the HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an OS signal
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
