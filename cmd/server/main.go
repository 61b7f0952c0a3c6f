// Package main provides the entry point for the lishe API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/lishe/internal/catalog"
	"github.com/thebtf/lishe/internal/config"
	gormdb "github.com/thebtf/lishe/internal/db/gorm"
	"github.com/thebtf/lishe/internal/logging"
	"github.com/thebtf/lishe/internal/notify"
	"github.com/thebtf/lishe/internal/recommend"
	"github.com/thebtf/lishe/internal/reminder"
	"github.com/thebtf/lishe/internal/scoring"
	"github.com/thebtf/lishe/internal/server"
	"github.com/thebtf/lishe/internal/server/sse"
	"github.com/thebtf/lishe/internal/supervisor"
)

var Version = "dev"

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
	logger.Info().
		Str("version", Version).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting lishe server")

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
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	users := gormdb.NewUserStore(store)
	records := gormdb.NewRecordStore(store)
	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		if _, err := users.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Name, cfg.Admin.Password); err != nil {
			log.Error().Err(err).Msg("Failed to seed admin account")
			return 1
		}
	}

	tables := scoring.DefaultTables()
	if cfg.Tables.Path != "" {
		tables, err = scoring.LoadTables(cfg.Tables.Path)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.Tables.Path).Msg("Failed to load reference tables")
			return 1
		}
	}

	holder, err := catalog.NewHolder(cfg.Catalog.Path, cfg.Catalog.NameColumn)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.Catalog.Path).Msg("Failed to load catalog")
		return 1
	}
	snap := holder.Get()
	log.Info().
		Int("rows", snap.Len()).
		Int("skipped", snap.Skipped()).
		Int("columns", len(snap.Columns())).
		Msg("Catalog loaded")

	mailer, err := notify.FromConfig(ctx, cfg, logger)
	if err != nil {
		log.Error().Err(err).Msg("Failed to configure notifier")
		return 1
	}

	events := sse.NewBroadcaster()
	svc := recommend.NewService(
		scoring.NewEngine(tables), holder, records, mailer, events,
		recommend.ConfigFrom(cfg), logger,
	)
	scheduler := reminder.NewScheduler(records, mailer, reminder.ConfigFrom(cfg.Reminder), logger)

	deps := server.Deps{
		Recommend: svc,
		Users:     users,
		Records:   records,
		Catalog:   holder,
		DB:        store,
		Notifier:  mailer,
		Events:    events,
	}
	if cfg.Reminder.Enabled {
		deps.Reminders = scheduler
	}
	srv := server.New(cfg.Server, cfg.Admin.Token, Version, deps, logger)

	tree := supervisor.NewTree(logger, supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddAPIService(srv)
	if cfg.Reminder.Enabled {
		tree.AddWorkerService(scheduler)
	}
	if cfg.Catalog.Watch {
		watcher, err := catalog.NewWatcher(holder, cfg.Catalog.Debounce, logger)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create catalog watcher")
			return 1
		}
		tree.AddDataService(watcher)
	}

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Supervisor stopped unexpectedly")
		return 1
	}
	log.Info().Msg("Server shutdown complete")
	return 0
}
