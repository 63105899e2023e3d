package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/i474232898/airq/internal/airquality/source"
	"github.com/i474232898/airq/internal/collector"
	"github.com/i474232898/airq/internal/config"
	"github.com/i474232898/airq/internal/logging"
	"github.com/i474232898/airq/internal/observability"
	"github.com/i474232898/airq/internal/store/sqlite"
)

// app carries what PersistentPreRunE resolved for the subcommands.
type app struct {
	cfg    *config.AppConfig
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "airq",
		Short: "Air quality data collector",
		Long: `airq polls the data.gov.in real time air quality feed, merges new pollutant
readings into a JSON dataset keyed by monitoring station and prunes readings
older than a retention window.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			if !cfg.EnvFileLoaded {
				logger.Debug("no .env file loaded")
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newCollectCmd(a), newServeCmd(a))
	return cmd
}

// openArchive opens the SQLite archive when one is configured. It returns nil
// when archiving is disabled.
func (a *app) openArchive(ctx context.Context) (*sqlite.Archive, error) {
	if a.cfg.Archive.SQLitePath == "" {
		return nil, nil
	}
	archive, err := sqlite.Open(ctx, a.cfg.Archive.SQLitePath, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return archive, nil
}

func (a *app) closeArchive(archive *sqlite.Archive) {
	if err := archive.Close(); err != nil {
		a.logger.Warn("closing archive failed", zap.Error(err))
	}
}

// buildService wires a collection service from configuration. archive may be
// nil.
func (a *app) buildService(reg prometheus.Registerer, archive *sqlite.Archive, opts ...collector.Option) *collector.Service {
	cfg := a.cfg
	client := source.NewClient(source.ClientConfig{
		HTTPClient: &http.Client{Timeout: cfg.API.Timeout},
		Backoff: source.BackoffConfig{
			MaxRetries:      cfg.API.MaxRetries,
			InitialInterval: cfg.API.BackoffInitial,
			MaxInterval:     cfg.API.BackoffMax,
		},
		RequestsPerSecond: cfg.API.RequestsPerSecond,
	}, a.logger)

	if archive != nil {
		opts = append(opts, collector.WithArchive(archive, cfg.ArchiveRetention()))
	}

	feed := collector.Feed{
		Endpoint:  cfg.API.Endpoint,
		APIKey:    cfg.API.Key,
		Format:    cfg.API.Format,
		PageLimit: cfg.API.PageLimit,
	}
	opts = append([]collector.Option{
		collector.WithLogger(a.logger),
		collector.WithRunTimeout(cfg.Collector.RunTimeout),
	}, opts...)

	return collector.NewService(feed, client, observability.NewMetrics(reg), opts...)
}
