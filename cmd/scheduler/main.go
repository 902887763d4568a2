package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/careconnect/telehealth-platform/cmd/mainconfig"
	"github.com/careconnect/telehealth-platform/internal/appointments"
	appconfig "github.com/careconnect/telehealth-platform/internal/config"
	"github.com/careconnect/telehealth-platform/internal/events"
	"github.com/careconnect/telehealth-platform/internal/scheduler"
	"github.com/careconnect/telehealth-platform/internal/subscriptions"
	"github.com/careconnect/telehealth-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting telehealth-platform scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := mainconfig.OpenDatabase(ctx, cfg)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	apptStore := appointments.NewStore(pool)
	subStore := subscriptions.NewStore(pool)
	outbox := events.NewOutboxStore(pool)

	batch := int32(cfg.SweepBatchSize)
	runner := scheduler.NewRunner(logger).
		Add(scheduler.NewReminderSweep(apptStore, outbox, events.AudienceClient, cfg.ReminderLead, batch), cfg.ReminderInterval).
		Add(scheduler.NewReminderSweep(apptStore, outbox, events.AudienceExpert, cfg.ReminderLead, batch), cfg.ReminderInterval).
		Add(scheduler.NewImminentSweep(apptStore, outbox, cfg.ImminentLead, batch), cfg.ImminentInterval).
		Add(scheduler.NewCompletionSweep(apptStore, batch), cfg.CompletionInterval).
		Add(scheduler.NewStaleSweep(apptStore, outbox, cfg.StalePendingAfter, batch), cfg.StaleInterval).
		Add(scheduler.NewExpiringSweep(subStore, outbox, cfg.ExpiringLead, batch), cfg.ExpiringInterval).
		Add(scheduler.NewExpirySweep(subStore, outbox, batch), cfg.ExpiryInterval)

	runner.Start(ctx)
	logger.Info("scheduler stopped")
}
