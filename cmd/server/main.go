package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/taskfair/marketplace-backend/internal/cache"
	"github.com/taskfair/marketplace-backend/internal/config"
	"github.com/taskfair/marketplace-backend/internal/db"
	"github.com/taskfair/marketplace-backend/internal/events"
	httpHandlers "github.com/taskfair/marketplace-backend/internal/http/handlers"
	httpRouter "github.com/taskfair/marketplace-backend/internal/http/router"
	"github.com/taskfair/marketplace-backend/internal/logger"
	"github.com/taskfair/marketplace-backend/internal/processor"
	"github.com/taskfair/marketplace-backend/internal/repository"
	"github.com/taskfair/marketplace-backend/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: failed to load configuration: %v", err)
	}

	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: failed to connect to database: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: migrations failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("main: failed to close redis client: %v", err)
		}
	}()

	producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.AlertTopic)
	defer func() {
		if err := producer.Close(); err != nil {
			log.Printf("main: failed to close event producer: %v", err)
		}
	}()

	processorClient := processor.NewClient(cfg.ProcessorBaseURL, cfg.ProcessorAPIKey)
	replayGuard := cache.NewReplayGuard(rdb, 0)

	// Repositories.
	userRepo := repository.NewUserRepository(dbConn)
	taskRepo := repository.NewTaskRepository(dbConn)
	offerRepo := repository.NewOfferRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)

	// Services.
	taskService := service.NewTaskService(taskRepo, offerRepo)
	offerService := service.NewOfferService(offerRepo, taskRepo, userRepo)
	escrowService := service.NewEscrowService(paymentRepo, taskRepo, offerRepo, userRepo, processorClient, producer, replayGuard)
	settlementService := service.NewSettlementService(paymentRepo, taskRepo, offerRepo, userRepo, processorClient, producer, producer)

	// HTTP handlers.
	taskHandler := httpHandlers.NewTaskHandler(taskService)
	offerHandler := httpHandlers.NewOfferHandler(offerService)
	checkoutHandler := httpHandlers.NewCheckoutHandler(escrowService)
	settlementHandler := httpHandlers.NewSettlementHandler(settlementService)
	webhookHandler := httpHandlers.NewWebhookHandler(escrowService, cfg.WebhookSecret)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	engine := httpRouter.SetupRouter(cfg, taskHandler, offerHandler, checkoutHandler, settlementHandler, webhookHandler, healthHandler)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: error shutting down http server: %v", err)
		}
	}()

	log.Printf("main: HTTP server listening on port %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: server exited with error: %v", err)
	}
}

func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: failed to close database: %v", err)
	}
}
