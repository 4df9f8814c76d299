package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/amonks/daybook/docstore"
	"github.com/amonks/daybook/docstore/sqlitestore"
	"github.com/amonks/daybook/internal/config"
	"github.com/amonks/daybook/internal/logging"
	"github.com/amonks/daybook/internal/paths"
	"github.com/amonks/daybook/internal/todoenv"
	"github.com/amonks/daybook/internal/ui"
	"github.com/amonks/daybook/migration"
	"github.com/amonks/daybook/todo"
	"github.com/amonks/daybook/tracker"
)

// app holds everything a command needs. It is opened lazily by the commands
// that touch the store and closed after the command finishes.
type app struct {
	settings config.Settings
	log      *logging.Log
	store    docstore.Store
	queue    *migration.Queue
	svc      *tracker.Service
	styles   ui.Styles
}

var currentApp *app

type openOptions struct {
	// watch keeps polling the store for writes from other processes.
	watch bool
}

func loadSettings() (config.Settings, error) {
	cfg, err := config.Load(globalConfigPath)
	if err != nil {
		return config.Settings{}, err
	}
	settings, err := cfg.Resolve()
	if err != nil {
		return config.Settings{}, err
	}
	settings.DefaultContext = todoenv.DefaultContext(settings.DefaultContext)
	if globalStorePath != "" {
		path, err := paths.ExpandHome(globalStorePath)
		if err != nil {
			return config.Settings{}, err
		}
		settings.StorePath = path
	}
	return settings, nil
}

func buildLogger(settings config.Settings) (*logging.Log, error) {
	level, err := logging.ParseLevel(settings.LogLevel)
	if err != nil {
		return nil, err
	}
	build := logging.New().WithLevel(level)
	switch {
	case globalVerbose:
		build = build.WithLevel(zerolog.DebugLevel).FromWriter(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: !ui.ColorEnabled(), TimeFormat: time.Kitchen})
	case settings.LogFile != "":
		build = build.FromPath(settings.LogFile)
	}
	return build.Make()
}

// openApp loads config, opens the store and builds the tracker service.
func openApp(ctx context.Context, opts openOptions) (*app, error) {
	if currentApp != nil {
		return currentApp, nil
	}
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	log, err := buildLogger(settings)
	if err != nil {
		return nil, err
	}
	logger := log.Logger

	migrate := todo.MigrateOptions{DefaultContext: settings.DefaultContext, Location: settings.Location}
	store, err := openStore(ctx, settings, opts, migrate, &logger)
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	queue := migration.NewQueue(store, migration.Options{
		Policy:    settings.Policy,
		BatchSize: settings.BatchSize,
		Migrate:   migrate,
		Logger:    &logger,
	})
	queue.Start(context.WithoutCancel(ctx))

	svc := tracker.New(store, tracker.Options{
		DefaultContext: settings.DefaultContext,
		Location:       settings.Location,
		Anchor:         settings.Anchor,
		Queue:          queue,
		Logger:         &logger,
	})
	if err := svc.EnsureViews(ctx); err != nil {
		queue.Close()
		_ = store.Close()
		_ = log.Close()
		return nil, err
	}

	currentApp = &app{
		settings: settings,
		log:      log,
		store:    store,
		queue:    queue,
		svc:      svc,
		styles:   ui.NewStyles(ui.ColorEnabled()),
	}
	return currentApp, nil
}

func openStore(ctx context.Context, settings config.Settings, opts openOptions, migrate todo.MigrateOptions, logger *zerolog.Logger) (docstore.Store, error) {
	base := docstore.Options{Migrate: migrate, Logger: logger}
	if globalMemory {
		return docstore.NewMemory(base), nil
	}

	if err := os.MkdirAll(filepath.Dir(settings.StorePath), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return sqlitestore.Open(ctx, settings.StorePath, sqlitestore.Options{
		Options:      base,
		PollInterval: pollInterval(settings.PollInterval, opts.watch),
	})
}

// pollInterval maps the configured interval onto sqlitestore's: zero in
// config disables polling, and one-shot commands never poll.
func pollInterval(configured time.Duration, watch bool) time.Duration {
	if !watch || configured == 0 {
		return -1
	}
	return configured
}

// closeApp flushes the migration queue and closes the store and log.
func closeApp() error {
	if currentApp == nil {
		return nil
	}
	a := currentApp
	currentApp = nil
	a.queue.Close()
	err := a.store.Close()
	return errors.Join(err, a.log.Close())
}
