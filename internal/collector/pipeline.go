// Package collector runs collection cycles: it loads the persisted dataset,
// folds the pages of the feed into it, applies retention and saves it back.
package collector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/i474232898/airq/internal/airquality"
	"github.com/i474232898/airq/internal/airquality/source"
	"github.com/i474232898/airq/internal/observability"
)

// Fetcher retrieves one page of the feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*source.Page, error)
}

// Report describes what a pipeline run did to the dataset.
type Report struct {
	PagesFetched int
	PagesSkipped int
	Merged       int
	Duplicates   int
	NewStations  int
	// Interrupted is set when the run ended early: the context was cancelled
	// or merging panicked. The dataset keeps whatever was merged before that.
	Interrupted bool
}

// Pipeline folds feed pages into a dataset, one page at a time.
type Pipeline struct {
	fetcher Fetcher
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewPipeline builds a Pipeline. A nil logger disables logging.
func NewPipeline(fetcher Fetcher, metrics *observability.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{fetcher: fetcher, metrics: metrics, logger: logger}
}

// Run walks the cursor and merges every page that could be fetched into ds.
// Pages that fail are skipped. Run never fails: whatever happens, ds is left
// holding everything merged so far.
func (p *Pipeline) Run(ctx context.Context, cursor *source.Cursor, ds *airquality.Dataset) (rep Report) {
	log := p.logger
	if id, ok := RunIDFrom(ctx); ok {
		log = log.With(zap.String("run_id", id))
	}

	defer func() {
		if r := recover(); r != nil {
			rep.Interrupted = true
			log.Error("collection aborted", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	for pageURL := range cursor.URLs() {
		if ctx.Err() != nil {
			rep.Interrupted = true
			log.Warn("collection cancelled", zap.Int("offset", cursor.Offset()), zap.Error(ctx.Err()))
			break
		}

		page, err := p.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			rep.PagesSkipped++
			p.metrics.PagesSkipped.Inc()
			log.Warn("page skipped", zap.Int("offset", cursor.Offset()), zap.Error(err))
			continue
		}
		if cursor.Learn(int(page.Total)) {
			log.Debug("feed size learned", zap.Int64("total", int64(page.Total)), zap.Int("limit", cursor.Limit()))
		}

		p.mergePage(ds, page, &rep, log)
		rep.PagesFetched++
		p.metrics.PagesFetched.Inc()
	}
	return rep
}

func (p *Pipeline) mergePage(ds *airquality.Dataset, page *source.Page, rep *Report, log *zap.Logger) {
	ts := int64(page.Updated)
	for _, raw := range page.Records {
		meta := raw.Meta()
		if strings.TrimSpace(meta.Name) == "" {
			log.Debug("entry without station skipped", zap.String("pollutant", raw.PollutantID))
			continue
		}

		if _, created := ds.MergeStation(meta); created {
			rep.NewStations++
			p.metrics.StationsCreated.Inc()
		}

		stored, err := ds.MergeRecord(raw.Reading(ts))
		if err != nil {
			// MergeStation ran first, so this is a broken invariant.
			panic(fmt.Sprintf("merge after station registration: %v", err))
		}
		if stored {
			rep.Merged++
			p.metrics.ReadingsMerged.Inc()
		} else {
			rep.Duplicates++
			p.metrics.ReadingsDuplicate.Inc()
		}
	}
}
