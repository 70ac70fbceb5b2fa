package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/wordnest/wordnest/internal/config"
	"github.com/wordnest/wordnest/internal/platform/backend"
	"github.com/wordnest/wordnest/internal/platform/logger"
	"github.com/wordnest/wordnest/internal/platform/sqlite"
	"github.com/wordnest/wordnest/internal/service"
	"github.com/wordnest/wordnest/internal/store"
	"github.com/wordnest/wordnest/internal/sync"
)

// app bundles everything a subcommand needs. Built lazily so commands that
// never touch the database (serve-dev) do not open one.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *sql.DB
	stores   *store.Stores
	notifier *store.Notifier
	engine   *sync.Engine
	recorder *service.Recorder
	wordBank *service.WordBank
}

func (a *app) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "wordnest",
		Short:         "Offline-first vocabulary trainer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default wordnest.yaml)")

	root.AddCommand(
		newSyncCmd(&configFile),
		newStatusCmd(&configFile),
		newCatalogCmd(&configFile),
		newAddCmd(&configFile),
		newImportCmd(&configFile),
		newIntroduceCmd(&configFile),
		newArchiveCmd(&configFile, true),
		newArchiveCmd(&configFile, false),
		newDueCmd(&configFile),
		newRecordCmd(&configFile),
		newEnrichCmd(&configFile),
		newWatchCmd(&configFile),
		newServeDevCmd(),
	)
	return root
}

// newApp loads config, sets up logging and wires the service graph.
func newApp(configFile string) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.Setup(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	stores := sqlite.NewStores(db, log)
	notifier := store.NewNotifier(log)

	client, err := backend.NewClient(cfg.Backend.BaseURL, backend.StaticToken(cfg.Backend.Token), cfg.Backend.Timeout, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	engine, err := sync.NewEngine(sync.Options{
		Stores:             stores,
		Backend:            client,
		Notifier:           notifier,
		Logger:             log,
		DebounceInterval:   cfg.Sync.DebounceInterval,
		CatalogMinInterval: cfg.Sync.CatalogMinInterval,
		CatalogMaxAge:      cfg.Sync.CatalogMaxAge,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	recorder, err := service.NewRecorder(stores, nil, notifier, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	wordBank, err := service.NewWordBank(stores, nil, notifier, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		stores:   stores,
		notifier: notifier,
		engine:   engine,
		recorder: recorder,
		wordBank: wordBank,
	}, nil
}

// run wraps a subcommand body with app setup and teardown.
func run(configFile *string, fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(*configFile)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		start := time.Now()
		if err := fn(cmd, args, a); err != nil {
			return err
		}
		a.log.Debug("command finished",
			slog.String("command", cmd.Name()),
			slog.Duration("elapsed", time.Since(start)))
		return nil
	}
}
