package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/airq/internal/api/http"
	"github.com/i474232898/airq/internal/collector"
	"github.com/i474232898/airq/internal/scheduler"
	"github.com/i474232898/airq/internal/store"
)

// runHistory is roughly a day of runs at the default 15 minute interval.
const runHistory = 96

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Collect on a schedule and serve the dataset over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	memStore := store.NewMemoryStore(runHistory)

	archive, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	opts := httpapi.Options{Gatherer: reg, AccessLog: cfg.Logging.Development}
	if archive != nil {
		defer a.closeArchive(archive)
		opts.History = archive
	}

	svc := a.buildService(reg, archive,
		collector.WithMemoryStore(memStore),
		collector.WithSink(cfg.Collector.SinkFile, cfg.Retention()))

	sched := scheduler.New(cfg.Collector.Interval, svc, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	srv := httpapi.NewApp(memStore, opts)

	listenErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("http server started", zap.String("addr", addr))
		listenErr <- srv.Listen(addr)
	}()

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
