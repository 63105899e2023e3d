package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// DefaultInterval is used when no positive interval is configured.
const DefaultInterval = 15 * time.Minute

// Collector runs one collection cycle and reports whether it succeeded.
type Collector interface {
	CollectOnce(ctx context.Context) bool
}

// Scheduler periodically runs collection cycles. Runs never overlap: a tick
// that fires while a run is still going is dropped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	collector Collector
	interval  time.Duration
	logger    *zap.Logger

	cancel context.CancelFunc
}

// New creates a new Scheduler.
func New(interval time.Duration, collector Collector, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		collector: collector,
		interval:  interval,
		logger:    logger.Named("scheduler"),
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run starts immediately. Runs are cancelled when ctx ends or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.collector == nil {
		return errors.New("scheduler: no collector configured")
	}
	ctx, s.cancel = context.WithCancel(ctx)

	_, err := s.scheduler.Every(s.interval).Do(func() {
		if ctx.Err() != nil {
			return
		}
		s.logger.Info("running collection job")
		if !s.collector.CollectOnce(ctx) {
			s.logger.Warn("collection job failed")
			return
		}
		s.logger.Info("completed collection job")
	})
	if err != nil {
		s.cancel()
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
