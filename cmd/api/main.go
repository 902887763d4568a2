package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careconnect/telehealth-platform/cmd/mainconfig"
	"github.com/careconnect/telehealth-platform/internal/api/router"
	"github.com/careconnect/telehealth-platform/internal/appointments"
	appconfig "github.com/careconnect/telehealth-platform/internal/config"
	"github.com/careconnect/telehealth-platform/internal/events"
	"github.com/careconnect/telehealth-platform/internal/notify"
	"github.com/careconnect/telehealth-platform/internal/payments"
	"github.com/careconnect/telehealth-platform/internal/plans"
	"github.com/careconnect/telehealth-platform/internal/subscriptions"
	"github.com/careconnect/telehealth-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting telehealth-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := mainconfig.OpenDatabase(ctx, cfg)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := mainconfig.OpenRedis(cfg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// Stores.
	planStore := plans.NewStore(pool)
	apptStore := appointments.NewStore(pool)
	subStore := subscriptions.NewStore(pool)
	orderStore := payments.NewStore(pool)
	outbox := events.NewOutboxStore(pool)
	processed := events.NewProcessedStore(pool)
	ledgerCache := subscriptions.NewLedgerCache(redisClient, cfg.LedgerCacheTTL)

	// Services.
	apptSvc := appointments.NewService(apptStore, planStore, outbox, logger)
	subSvc := subscriptions.NewService(subStore, planStore, apptSvc, apptStore, ledgerCache, outbox, logger)
	reconciler := payments.NewReconciler(orderStore, apptSvc, subSvc, logger)

	// Notification delivery: outbox facts flow to the queue in the
	// background.
	var queue notify.Sender
	if cfg.UseMemoryQueue {
		queue = notify.NewMemoryQueue(128)
		logger.Warn("using in-memory notification queue; facts do not survive restarts")
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		queue = notify.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.NotificationQueueURL)
	}
	deliverer := events.NewDeliverer(outbox, notify.NewPublisher(queue, logger), logger)
	go deliverer.Start(ctx)

	// Handlers.
	routerCfg := &router.Config{
		Logger:               logger,
		PlansHandler:         plans.NewHandler(planStore, cfg.Currency, logger),
		AppointmentsHandler:  appointments.NewHandler(apptSvc, logger),
		SubscriptionsHandler: subscriptions.NewHandler(subSvc, logger),
		PaymentsHandler:      payments.NewHandler(orderStore, apptStore, subStore, reconciler, processed, cfg.GatewayWebhookSecret, logger),
		PaymentWebhook:       payments.NewWebhookHandler(cfg.GatewayWebhookSecret, reconciler, processed, logger),
		MetricsHandler:       promhttp.Handler(),
		AuthJWTSecret:        cfg.AuthJWTSecret,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
