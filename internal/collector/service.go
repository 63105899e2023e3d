package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/i474232898/airq/internal/airquality"
	"github.com/i474232898/airq/internal/airquality/source"
	"github.com/i474232898/airq/internal/observability"
	"github.com/i474232898/airq/internal/store"
)

// Feed addresses the upstream API.
type Feed struct {
	Endpoint  string
	APIKey    string
	Format    string
	PageLimit int
}

// Archiver keeps readings under a retention of its own, usually longer than
// the dataset file's.
type Archiver interface {
	Store(ctx context.Context, ds *airquality.Dataset) (int64, error)
	PruneBefore(ctx context.Context, cutoff int64) (int64, error)
}

// Service orchestrates collection runs against a dataset file.
type Service struct {
	feed       Feed
	pipeline   *Pipeline
	sinkFile   string
	retention  airquality.Retention
	runTimeout time.Duration

	memory           *store.MemoryStore
	archive          Archiver
	archiveRetention airquality.Retention
	clock            clockwork.Clock
	metrics          *observability.Metrics
	logger           *zap.Logger

	// one run at a time per service
	mu sync.Mutex
}

// Option customises a Service.
type Option func(*Service)

// WithMemoryStore publishes every saved dataset to m.
func WithMemoryStore(m *store.MemoryStore) Option {
	return func(s *Service) { s.memory = m }
}

// WithArchive mirrors saved datasets into a and prunes it to retention,
// measured from the newest collection like the dataset's.
func WithArchive(a Archiver, retention airquality.Retention) Option {
	return func(s *Service) {
		s.archive = a
		s.archiveRetention = retention
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithSink sets the dataset file and retention used by CollectOnce.
func WithSink(path string, retention airquality.Retention) Option {
	return func(s *Service) {
		s.sinkFile = path
		s.retention = retention
	}
}

// WithRunTimeout bounds the duration of each run.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Service) { s.runTimeout = d }
}

// NewService creates a new Service.
func NewService(feed Feed, fetcher Fetcher, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		feed:             feed,
		retention:        airquality.KeepAll(),
		archiveRetention: airquality.KeepAll(),
		clock:     clockwork.NewRealClock(),
		metrics:   metrics,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("collector")
	s.pipeline = NewPipeline(fetcher, metrics, s.logger)
	return s
}

// CollectOnce runs Collect against the configured sink.
func (s *Service) CollectOnce(ctx context.Context) bool {
	return s.Collect(ctx, s.sinkFile, s.retention)
}

// Collect loads the dataset stored at path, merges the current feed into it,
// prunes it to retention and writes it back. It reports whether the dataset
// was saved; everything else is logged and exported as metrics.
func (s *Service) Collect(ctx context.Context, path string, retention airquality.Retention) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	run := store.RunRecord{ID: uuid.NewString(), StartedAt: s.clock.Now().UTC()}
	ctx = WithRunID(ctx, run.ID)
	log := s.logger.With(zap.String("run_id", run.ID), zap.String("sink", path))
	log.Info("collection started", zap.Stringer("retention", retention))

	files := store.NewFileStore(path)
	ds, err := files.Load()
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Info("no previous dataset, starting empty")
	case err != nil:
		log.Warn("previous dataset unreadable, starting empty", zap.Error(err))
	}

	cursor, err := source.NewCursor(s.feed.Endpoint, s.feed.APIKey, s.feed.Format, s.feed.PageLimit)
	if err != nil {
		log.Error("cannot address feed", zap.Error(err))
		return s.finish(log, run, nil, false)
	}

	rep := s.pipeline.Run(ctx, cursor, ds)
	run.PagesFetched = rep.PagesFetched
	run.PagesSkipped = rep.PagesSkipped
	run.Merged = rep.Merged
	run.Duplicates = rep.Duplicates
	run.NewStations = rep.NewStations

	run.Pruned = ds.ApplyRetention(retention)
	s.metrics.BucketsPruned.Add(float64(run.Pruned))
	run.Stats = ds.Stats()

	if err := files.Save(ds); err != nil {
		log.Error("saving dataset failed", zap.Error(err))
		return s.finish(log, run, nil, false)
	}
	if rep.Interrupted {
		log.Warn("run interrupted, partial dataset saved")
	}

	s.archiveDataset(ctx, log, ds)
	return s.finish(log, run, ds, true)
}

func (s *Service) archiveDataset(ctx context.Context, log *zap.Logger, ds *airquality.Dataset) {
	if s.archive == nil {
		return
	}
	// The run context may already be spent; archiving a saved dataset is
	// still worth a short grace period.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	inserted, err := s.archive.Store(actx, ds)
	if err != nil {
		log.Warn("archiving readings failed", zap.Error(err))
		return
	}
	newest, ok := ds.MaxTimestamp()
	if !s.archiveRetention.Bounded() || !ok {
		log.Debug("readings archived", zap.Int64("inserted", inserted))
		return
	}
	removed, err := s.archive.PruneBefore(actx, s.archiveRetention.Cutoff(newest))
	if err != nil {
		log.Warn("pruning archive failed", zap.Error(err))
		return
	}
	log.Debug("readings archived", zap.Int64("inserted", inserted), zap.Int64("pruned", removed))
}

func (s *Service) finish(log *zap.Logger, run store.RunRecord, ds *airquality.Dataset, ok bool) bool {
	run.FinishedAt = s.clock.Now().UTC()
	run.OK = ok
	s.metrics.RunDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())

	if !ok {
		s.metrics.RunsTotal.WithLabelValues(observability.OutcomeFailure).Inc()
		if s.memory != nil {
			s.memory.RecordRun(run)
		}
		log.Error("collection failed")
		return false
	}

	s.metrics.RunsTotal.WithLabelValues(observability.OutcomeSuccess).Inc()
	s.metrics.LastSuccess.Set(float64(run.FinishedAt.Unix()))
	s.metrics.Stations.Set(float64(run.Stats.Stations))
	if s.memory != nil {
		s.memory.Publish(ds, run)
	}
	log.Info("collection finished",
		zap.Int("pages_fetched", run.PagesFetched),
		zap.Int("pages_skipped", run.PagesSkipped),
		zap.Int("readings_merged", run.Merged),
		zap.Int("readings_duplicate", run.Duplicates),
		zap.Int("stations_created", run.NewStations),
		zap.Int("buckets_pruned", run.Pruned),
		zap.Int("stations", run.Stats.Stations),
		zap.Duration("took", run.FinishedAt.Sub(run.StartedAt)))
	return true
}

type runIDKey struct{}

// WithRunID tags ctx with a collection run id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom returns the run id carried by ctx.
func RunIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok
}
