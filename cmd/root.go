package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Another0Noob/animecatalog/internal/config"
	"github.com/Another0Noob/animecatalog/internal/foreign"
	"github.com/Another0Noob/animecatalog/internal/logging"
	"github.com/Another0Noob/animecatalog/internal/primaryapi"
	"github.com/Another0Noob/animecatalog/internal/service"
	"github.com/Another0Noob/animecatalog/internal/store"
	"github.com/Another0Noob/animecatalog/internal/visualapi"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "animecatalog",
	Short: "Catalog addon that links titles across sources",
	Long: `animecatalog serves a media catalog built from a primary source, groups
seasons of the same series, enriches entries with artwork from a secondary
source and resolves external ids to catalog items.

Without a subcommand it runs the server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), cfgFile)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&cfgFile,
		"config",
		"c",
		"",
		"path to config file",
	)
}

// app bundles what every command needs.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   store.Store
	svc     *service.Service
	closers []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
}

// newApp loads the configuration and wires the service with its restored
// state.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	if missing := cfg.Missing(); len(missing) > 0 {
		logger.Warn("configuration incomplete", "missing", missing)
	}

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Dir)
	if err != nil {
		logger.Warn("durable store unavailable, keeping state in memory", "error", err)
		if st, err = store.Open(store.DriverMemory, ""); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.store = st
	a.closers = append(a.closers, st)

	primary := primaryapi.NewClient(primaryapi.Options{
		BaseURL:    cfg.Primary.BaseURL,
		SearchPath: cfg.Primary.SearchPath,
		Headers:    cfg.Primary.Headers,
		Timeout:    cfg.Primary.Timeout,
		Retries:    cfg.Primary.Retries,
		RetryDelay: cfg.Primary.RetryDelay,
		Logger:     logger.With("component", "primary"),
	})
	vis := visualapi.NewClient(visualapi.Options{
		BaseURL:    cfg.Visual.BaseURL,
		DetailPath: cfg.Visual.DetailPath,
		Timeout:    cfg.Visual.Timeout,
		Logger:     logger.With("component", "visualapi"),
	})
	titles := foreign.NewClient(foreign.Options{
		CinemetaURL: cfg.Meta.CinemetaURL,
		KitsuURL:    cfg.Meta.KitsuURL,
		Timeout:     cfg.Meta.Timeout,
		Logger:      logger.With("component", "foreign"),
	})

	svc, err := service.New(service.Deps{
		Primary: primary,
		Visual:  vis,
		Titles:  titles,
		Store:   st,
	}, service.OptionsFromConfig(cfg), logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	svc.Load()
	a.svc = svc
	return a, nil
}
