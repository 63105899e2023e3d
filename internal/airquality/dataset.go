// Package airquality holds the station dataset built from the public air
// quality feed: a name-sorted station registry, per-station readings bucketed
// by collection timestamp, retention pruning and the persisted JSON form.
//
// A Dataset is not safe for concurrent use. Collection runs mutate one
// dataset sequentially; readers in other goroutines should only see datasets
// that are no longer being merged into.
package airquality

import (
	"fmt"
)

// Dataset is the set of stations known to the collector.
type Dataset struct {
	registry Registry
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{}
}

// MergeStation registers a station the first time its name is seen. Metadata
// of an already registered station is left untouched. It returns the
// registered station and whether it was created by this call.
func (d *Dataset) MergeStation(meta StationMeta) (*Station, bool) {
	if st, ok := d.registry.Lookup(meta.Name); ok {
		return st, false
	}
	st := NewStation(meta)
	d.registry.Insert(st)
	return st, true
}

// MergeRecord attaches r to its owning station. The station must have been
// registered with MergeStation before. It reports whether the reading was new.
func (d *Dataset) MergeRecord(r PollutantRecord) (bool, error) {
	st, ok := d.registry.Lookup(r.StationName)
	if !ok {
		return false, fmt.Errorf("merge %s reading: %w: %q", r.ID, ErrUnknownStation, r.StationName)
	}
	return st.AddRecord(r), nil
}

// Station looks up a station by name.
func (d *Dataset) Station(name string) (*Station, bool) {
	return d.registry.Lookup(name)
}

// Stations returns all stations in name order.
func (d *Dataset) Stations() []*Station {
	return d.registry.All()
}

// Len returns the number of stations.
func (d *Dataset) Len() int {
	return d.registry.Len()
}

// MaxTimestamp returns the newest collection timestamp across all stations.
// Stations without readings are ignored; ok is false when no station has any.
func (d *Dataset) MaxTimestamp() (ts int64, ok bool) {
	for _, st := range d.registry.stations {
		stMax, err := st.MaxTimestamp()
		if err != nil {
			continue
		}
		if !ok || stMax > ts {
			ts = stMax
			ok = true
		}
	}
	return ts, ok
}

// ApplyRetention prunes, on every station, the buckets older than the
// retention window measured back from the newest collection in the dataset.
// It returns the number of buckets removed.
func (d *Dataset) ApplyRetention(ret Retention) int {
	if !ret.Bounded() {
		return 0
	}
	newest, ok := d.MaxTimestamp()
	if !ok {
		return 0
	}
	cutoff := ret.Cutoff(newest)

	pruned := 0
	for _, st := range d.registry.stations {
		pruned += st.PruneBefore(cutoff)
	}
	return pruned
}

// Stats counts stations, buckets and readings.
func (d *Dataset) Stats() Stats {
	s := Stats{Stations: d.registry.Len()}
	for _, st := range d.registry.stations {
		s.Buckets += st.RecordCount()
		s.Readings += st.ReadingCount()
	}
	return s
}
