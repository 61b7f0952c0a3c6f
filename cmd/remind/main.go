// Package main runs one reminder sweep and exits, for cron-style deployments.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/lishe/internal/config"
	gormdb "github.com/thebtf/lishe/internal/db/gorm"
	"github.com/thebtf/lishe/internal/logging"
	"github.com/thebtf/lishe/internal/notify"
	"github.com/thebtf/lishe/internal/reminder"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}
	logger := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := gormdb.NewStore(gormdb.Config{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
		LogLevel: gormdb.ParseLogLevel(cfg.Database.LogLevel),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to open database")
		return 1
	}
	defer store.Close()

	mailer, err := notify.FromConfig(ctx, cfg, logger)
	if err != nil {
		log.Error().Err(err).Msg("Failed to configure notifier")
		return 1
	}

	scheduler := reminder.NewScheduler(gormdb.NewRecordStore(store), mailer, reminder.ConfigFrom(cfg.Reminder), logger)
	res, err := scheduler.RunSweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Reminder sweep failed")
		return 1
	}

	log.Info().
		Int("candidates", res.Candidates).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("Reminder sweep complete")
	if res.Failed > 0 {
		return 2
	}
	return 0
}
