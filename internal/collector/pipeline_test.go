package collector

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/i474232898/airq/internal/airquality"
	"github.com/i474232898/airq/internal/airquality/source"
	"github.com/i474232898/airq/internal/observability"
)

const feedURL = "https://feed.example/resource"

// fakeFetcher serves pages by offset.
type fakeFetcher struct {
	pages   map[string]*source.Page
	fail    map[string]error
	panicAt string
	calls   []string
	onFetch func()
}

func (f *fakeFetcher) Fetch(_ context.Context, raw string) (*source.Page, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	offset := u.Query().Get("offset")
	f.calls = append(f.calls, offset)
	if f.onFetch != nil {
		f.onFetch()
	}
	if offset == f.panicAt {
		panic("boom")
	}
	if err := f.fail[offset]; err != nil {
		return nil, err
	}
	p, ok := f.pages[offset]
	if !ok {
		return nil, errors.New("no such page")
	}
	return p, nil
}

func entry(station, city, state, pollutant, avg string) source.RawRecord {
	var n airquality.Number
	_ = n.UnmarshalJSON([]byte(`"` + avg + `"`))
	return source.RawRecord{
		Station: station, City: city, State: state, Country: "India",
		PollutantID: pollutant, Min: n, Max: n, Avg: n, Unit: "NA",
	}
}

func page(updated, total int64, records ...source.RawRecord) *source.Page {
	return &source.Page{
		Updated: airquality.Integer(updated),
		Total:   airquality.Integer(total),
		Records: records,
	}
}

func newCursor(t *testing.T, limit int) *source.Cursor {
	t.Helper()
	c, err := source.NewCursor(feedURL, "k", "json", limit)
	require.NoError(t, err)
	return c
}

func TestPipeline_MergesEveryPage(t *testing.T) {
	f := &fakeFetcher{pages: map[string]*source.Page{
		"0": page(1000, 5,
			entry("Delhi-1", "Delhi", "Delhi", "PM2.5", "45"),
			entry("Delhi-1", "Delhi", "Delhi", "NO2", "12")),
		"2": page(1000, 5,
			entry("Mumbai-2", "Mumbai", "Maharashtra", "PM2.5", "30"),
			entry("Delhi-1", "Delhi", "Delhi", "PM2.5", "99")),
		"4": page(1000, 5,
			entry("Pune-3", "Pune", "Maharashtra", "OZONE", "NA")),
	}}
	metrics := observability.NewMetricsForTesting()
	ds := airquality.NewDataset()

	rep := NewPipeline(f, metrics, zap.NewNop()).Run(context.Background(), newCursor(t, 2), ds)

	assert.Equal(t, []string{"0", "2", "4"}, f.calls)
	assert.Equal(t, Report{PagesFetched: 3, Merged: 4, Duplicates: 1, NewStations: 3}, rep)
	assert.Equal(t, []string{"Delhi-1", "Mumbai-2", "Pune-3"}, ds.StationNames())

	delhi, _ := ds.Station("Delhi-1")
	bucket := delhi.Bucket(1000)
	require.Len(t, bucket, 2)
	assert.Equal(t, 45.0, bucket[0].Avg, "first reading of the batch wins")

	pune, _ := ds.Station("Pune-3")
	assert.Equal(t, 0.0, pune.Bucket(1000)[0].Avg)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.PagesFetched))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.StationsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ReadingsDuplicate))
}

func TestPipeline_SkipsFailedPages(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := &fakeFetcher{
		pages: map[string]*source.Page{
			"0":  page(500, 30, entry("A", "a", "x", "CO", "1")),
			"20": page(500, 30, entry("C", "c", "x", "CO", "3")),
		},
		fail: map[string]error{"10": source.ErrServerError},
	}
	metrics := observability.NewMetricsForTesting()
	ds := airquality.NewDataset()

	rep := NewPipeline(f, metrics, zap.New(core)).Run(context.Background(), newCursor(t, 10), ds)

	assert.Equal(t, 2, rep.PagesFetched)
	assert.Equal(t, 1, rep.PagesSkipped)
	assert.False(t, rep.Interrupted)
	assert.Equal(t, []string{"A", "C"}, ds.StationNames())
	assert.Equal(t, 1, logs.FilterMessage("page skipped").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PagesSkipped))
}

func TestPipeline_FailedFirstPageEndsRun(t *testing.T) {
	f := &fakeFetcher{fail: map[string]error{"0": errors.New("dial tcp: refused")}}
	ds := airquality.NewDataset()

	rep := NewPipeline(f, observability.NewMetricsForTesting(), nil).Run(context.Background(), newCursor(t, 10), ds)

	assert.Equal(t, []string{"0"}, f.calls)
	assert.Equal(t, Report{PagesSkipped: 1}, rep)
	assert.Equal(t, 0, ds.Len())
}

func TestPipeline_EmptyFeed(t *testing.T) {
	f := &fakeFetcher{pages: map[string]*source.Page{"0": page(1, 0)}}
	ds := airquality.NewDataset()

	rep := NewPipeline(f, observability.NewMetricsForTesting(), nil).Run(context.Background(), newCursor(t, 10), ds)

	assert.Equal(t, []string{"0"}, f.calls)
	assert.Equal(t, 1, rep.PagesFetched)
}

func TestPipeline_PanicKeepsPartialDataset(t *testing.T) {
	f := &fakeFetcher{
		pages:   map[string]*source.Page{"0": page(7, 30, entry("A", "a", "x", "SO2", "4"))},
		panicAt: "10",
	}
	ds := airquality.NewDataset()

	var rep Report
	assert.NotPanics(t, func() {
		rep = NewPipeline(f, observability.NewMetricsForTesting(), nil).Run(context.Background(), newCursor(t, 10), ds)
	})

	assert.True(t, rep.Interrupted)
	assert.Equal(t, 1, rep.PagesFetched)
	assert.Equal(t, []string{"A"}, ds.StationNames())
}

func TestPipeline_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeFetcher{
		pages: map[string]*source.Page{
			"0":  page(7, 30, entry("A", "a", "x", "SO2", "4")),
			"10": page(7, 30, entry("B", "b", "x", "SO2", "4")),
		},
		onFetch: cancel,
	}
	ds := airquality.NewDataset()

	rep := NewPipeline(f, observability.NewMetricsForTesting(), nil).Run(ctx, newCursor(t, 10), ds)

	assert.True(t, rep.Interrupted)
	assert.Equal(t, []string{"0"}, f.calls)
	assert.Equal(t, []string{"A"}, ds.StationNames())
}

func TestPipeline_SkipsEntriesWithoutStation(t *testing.T) {
	f := &fakeFetcher{pages: map[string]*source.Page{
		"0": page(7, 1, entry("  ", "a", "x", "SO2", "4"), entry("B", "b", "x", "SO2", "4")),
	}}
	ds := airquality.NewDataset()

	rep := NewPipeline(f, observability.NewMetricsForTesting(), nil).Run(context.Background(), newCursor(t, 10), ds)

	assert.Equal(t, 1, rep.Merged)
	assert.Equal(t, []string{"B"}, ds.StationNames())
}
