package airquality

import (
	"cmp"
	"slices"
	"time"
)

// AddRecord stores r in the bucket for its timestamp. A reading whose pollutant
// id is already present in that bucket is discarded, so re-collecting the same
// batch is a no-op. It reports whether r was stored.
func (s *Station) AddRecord(r PollutantRecord) bool {
	r.StationName = s.Name

	bucket, ok := s.records[r.Timestamp]
	if !ok {
		s.records[r.Timestamp] = []PollutantRecord{r}
		return true
	}

	for _, existing := range bucket {
		if existing.ID == r.ID {
			return false
		}
	}
	s.records[r.Timestamp] = append(bucket, r)
	return true
}

// PruneBefore drops every bucket whose timestamp is strictly less than cutoff
// and returns the number of buckets removed.
func (s *Station) PruneBefore(cutoff int64) int {
	removed := 0
	for ts := range s.records {
		if ts < cutoff {
			delete(s.records, ts)
			removed++
		}
	}
	return removed
}

// MaxTimestamp returns the most recent bucket key.
func (s *Station) MaxTimestamp() (int64, error) {
	if len(s.records) == 0 {
		return 0, ErrEmptyStore
	}
	var maxTS int64
	first := true
	for ts := range s.records {
		if first || ts > maxTS {
			maxTS = ts
			first = false
		}
	}
	return maxTS, nil
}

// MinTimestamp returns the oldest bucket key.
func (s *Station) MinTimestamp() (int64, error) {
	if len(s.records) == 0 {
		return 0, ErrEmptyStore
	}
	var minTS int64
	first := true
	for ts := range s.records {
		if first || ts < minTS {
			minTS = ts
			first = false
		}
	}
	return minTS, nil
}

// TimeRange returns the oldest and newest collection times held by the station.
func (s *Station) TimeRange() (from, to time.Time, err error) {
	minTS, err := s.MinTimestamp()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	maxTS, err := s.MaxTimestamp()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return time.Unix(minTS, 0).UTC(), time.Unix(maxTS, 0).UTC(), nil
}

// RecordCount returns the number of collection events (buckets), not readings.
func (s *Station) RecordCount() int {
	return len(s.records)
}

// ReadingCount returns the total number of readings across all buckets.
func (s *Station) ReadingCount() int {
	n := 0
	for _, bucket := range s.records {
		n += len(bucket)
	}
	return n
}

// Timestamps returns the bucket keys in ascending order.
func (s *Station) Timestamps() []int64 {
	keys := make([]int64, 0, len(s.records))
	for ts := range s.records {
		keys = append(keys, ts)
	}
	slices.Sort(keys)
	return keys
}

// Bucket returns a copy of the readings collected at ts.
func (s *Station) Bucket(ts int64) []PollutantRecord {
	return slices.Clone(s.records[ts])
}

// PollutantIDs returns the distinct pollutant ids seen by the station, sorted.
func (s *Station) PollutantIDs() []string {
	seen := make(map[string]struct{})
	for _, bucket := range s.records {
		for _, r := range bucket {
			seen[r.ID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RecordsFor returns every reading of pollutant id, oldest first.
func (s *Station) RecordsFor(id string) []PollutantRecord {
	var out []PollutantRecord
	for _, bucket := range s.records {
		for _, r := range bucket {
			if r.ID == id {
				out = append(out, r)
			}
		}
	}
	slices.SortFunc(out, func(a, b PollutantRecord) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return out
}
