package store

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/i474232898/airq/internal/airquality"
)

var (
	// ErrNotFound is returned when no data is available for the request.
	ErrNotFound = errors.New("no air quality data")
)

// RunRecord summarises one collection run.
type RunRecord struct {
	ID           string           `json:"id"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	OK           bool             `json:"ok"`
	PagesFetched int              `json:"pages_fetched"`
	PagesSkipped int              `json:"pages_skipped"`
	Merged       int              `json:"readings_merged"`
	Duplicates   int              `json:"readings_duplicate"`
	NewStations  int              `json:"stations_created"`
	Pruned       int              `json:"buckets_pruned"`
	Stats        airquality.Stats `json:"stats"`
}

// Snapshot is a published dataset together with the run that produced it.
type Snapshot struct {
	Dataset *airquality.Dataset
	Run     RunRecord
}

// MemoryStore is a concurrency-safe holder of the latest published dataset
// and a bounded history of run summaries.
//
// Published datasets are treated as immutable: the collector hands over a
// dataset it no longer merges into.
type MemoryStore struct {
	mu sync.RWMutex

	latest  *Snapshot
	history []RunRecord

	// max number of run records kept
	maxHistory int
}

// NewMemoryStore creates a new MemoryStore.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{maxHistory: maxHistory}
}

// Publish makes ds the dataset served to readers and records the run.
func (s *MemoryStore) Publish(ds *airquality.Dataset, run RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = &Snapshot{Dataset: ds, Run: run}
	s.appendRun(run)
}

// RecordRun records a run that did not publish a dataset.
func (s *MemoryStore) RecordRun(run RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendRun(run)
}

func (s *MemoryStore) appendRun(run RunRecord) {
	s.history = append(s.history, run)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.history) > s.maxHistory {
		over := len(s.history) - s.maxHistory
		s.history = slices.Clone(s.history[over:])
	}
}

// GetLatest returns the most recently published snapshot.
func (s *MemoryStore) GetLatest() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return Snapshot{}, ErrNotFound
	}
	return *s.latest, nil
}

// GetStation returns a station of the latest snapshot.
func (s *MemoryStore) GetStation(name string) (*airquality.Station, error) {
	snap, err := s.GetLatest()
	if err != nil {
		return nil, err
	}
	st, ok := snap.Dataset.Station(name)
	if !ok {
		return nil, ErrNotFound
	}
	return st, nil
}

// GetRange returns the readings of one pollutant at a station collected
// between from and to (inclusive), oldest first.
func (s *MemoryStore) GetRange(station, pollutant string, from, to time.Time) ([]airquality.PollutantRecord, error) {
	st, err := s.GetStation(station)
	if err != nil {
		return nil, err
	}

	var result []airquality.PollutantRecord
	for _, r := range st.RecordsFor(pollutant) {
		ts := time.Unix(r.Timestamp, 0)
		if (ts.Equal(from) || ts.After(from)) && (ts.Equal(to) || ts.Before(to)) {
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// Runs returns the recorded runs, newest first.
func (s *MemoryStore) Runs() []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.history)
	slices.Reverse(out)
	return out
}
