package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"umrah-backend/internal/auth"
	"umrah-backend/internal/cache"
	"umrah-backend/internal/config"
	"umrah-backend/internal/database"
	"umrah-backend/internal/db"
	"umrah-backend/internal/directory"
	"umrah-backend/internal/events"
	"umrah-backend/internal/handlers"
	"umrah-backend/internal/health"
	h "umrah-backend/internal/http"
	"umrah-backend/internal/interfaces"
	"umrah-backend/internal/middleware"
	"umrah-backend/internal/monitoring"
	"umrah-backend/internal/outbox"
	"umrah-backend/internal/repositories"
	"umrah-backend/internal/services"
	"umrah-backend/internal/telemetry"
	"umrah-backend/internal/workers"

	"go.uber.org/zap"
)

func main() {
	// Parse command-line flags
	mode := flag.String("mode", "all", "Server mode: api, worker or all")
	port := flag.Int("port", 0, "Server port (overrides config)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()
	if *port != 0 {
		cfg.Server.Port = *port
	}

	telemetry.Init("umrah-backend")
	defer telemetry.Sync()

	pool := db.Connect(cfg)
	defer pool.Close()

	// Redis is optional: without it the rule cache and run locks degrade
	// gracefully.
	if err := cache.Init(cfg.Redis.Addr, cfg.Redis.Password); err != nil {
		telemetry.Logger.Warn("redis unavailable, running without cache and run locks", zap.Error(err))
	} else {
		telemetry.Logger.Info("redis connected")
	}

	// Run database migrations (embedded, so the binary is self-contained)
	migrator := database.NewMigrator(pool)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := migrator.RunMigrations(ctx); err != nil {
		cancel()
		log.Fatalf("Failed to run migrations: %v", err)
	}
	cancel()

	// Repositories
	ledgerRepo := repositories.NewLedgerRepository(pool)
	commissionRepo := repositories.NewCommissionRepository(pool)
	payoutRepo := repositories.NewPayoutRepository(pool)
	reminderRepo := repositories.NewReminderRepository(pool)
	webhookRepo := repositories.NewWebhookRepository(pool)
	outboxRepo := repositories.NewOutboxRepository(pool)

	// Referrer chain resolution: the directory service in production, a
	// static empty map when unconfigured (direct commissions only).
	var agentDirectory interfaces.ReferrerDirectory
	if cfg.ReferrerDirectory.BaseURL != "" {
		agentDirectory = directory.NewHTTPDirectory(cfg.ReferrerDirectory.BaseURL)
	} else {
		telemetry.Logger.Warn("referrer directory not configured, upper-level commissions disabled")
		agentDirectory = directory.NewStaticDirectory(nil)
	}

	// Services
	paymentService := services.NewPaymentService(ledgerRepo)
	commissionService := services.NewCommissionService(commissionRepo, agentDirectory, ledgerRepo, cfg.Settlement.CurrencyExponent)
	payoutService := services.NewPayoutService(payoutRepo)
	reminderService := services.NewReminderService(reminderRepo, cfg.Reminder.OffsetsDays, cfg.Reminder.Channels)
	webhookService := services.NewWebhookService(webhookRepo)
	paymentService.SetReminderService(reminderService)

	// External event stream (optional)
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Broker != "" {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka.Broker, cfg.Kafka.Topic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background loops
	if *mode == "worker" || *mode == "all" {
		poller := outbox.NewPoller(outboxRepo, commissionService, webhookService, publisher,
			time.Duration(cfg.Outbox.PollIntervalSec)*time.Second, cfg.Outbox.BatchSize)
		go poller.Run(rootCtx)

		dispatcher := workers.NewWebhookDispatcher(webhookRepo,
			cfg.Webhook.MaxAttempts,
			time.Duration(cfg.Webhook.BaseBackoffSec)*time.Second,
			time.Duration(cfg.Webhook.MaxBackoffSec)*time.Second,
			time.Duration(cfg.Webhook.AttemptTimeoutSec)*time.Second,
			time.Duration(cfg.Webhook.PollIntervalSec)*time.Second)
		go dispatcher.Run(rootCtx)

		scanner := workers.NewReminderScanner(reminderRepo, reminderService,
			time.Duration(cfg.Reminder.ScanInterval)*time.Minute)
		go scanner.Run(rootCtx)
	}

	if *mode == "worker" {
		telemetry.Logger.Info("running in worker mode")
		<-rootCtx.Done()
		return
	}

	// Monitoring server on its own port
	go monitoring.NewMonitoringServer(pool, outboxRepo, cfg.Server.MonitoringPort).Start()

	// HTTP API
	healthChecker := health.NewHealthChecker(pool, outboxRepo)
	jwtManager := auth.NewJWTManager(cfg)
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)

	router := h.NewRouter(
		handlers.NewPaymentHandler(paymentService),
		handlers.NewCommissionHandler(commissionService),
		handlers.NewPayoutHandler(payoutService),
		handlers.NewReminderHandler(reminderService),
		handlers.NewWebhookHandler(webhookService),
		handlers.NewHealthHandler(healthChecker),
		authMiddleware,
	)

	handler := middleware.PanicRecovery(
		middleware.NewCORS(cfg)(
			middleware.MetricsMiddleware(router)))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	telemetry.Logger.Info("api server listening", zap.String("addr", addr), zap.String("mode", *mode))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
