package airquality

import (
	"slices"
	"strings"
)

// Registry keeps stations ordered by name. The slice is always sorted
// ascending so both Insert and Lookup are binary searches; the order is also
// the export order of the persisted dataset.
type Registry struct {
	stations []*Station
}

// Insert places st at its sorted position. An existing station with the same
// name is not replaced: the new entry lands right after it, so callers must
// Lookup first.
func (r *Registry) Insert(st *Station) {
	lo, hi := 0, len(r.stations)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if r.stations[mid].Name > st.Name {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	r.stations = slices.Insert(r.stations, lo, st)
}

// Lookup finds the station named name.
func (r *Registry) Lookup(name string) (*Station, bool) {
	i, found := slices.BinarySearchFunc(r.stations, name, func(st *Station, target string) int {
		return strings.Compare(st.Name, target)
	})
	if !found {
		return nil, false
	}
	return r.stations[i], true
}

// Len returns the number of registered stations.
func (r *Registry) Len() int {
	return len(r.stations)
}

// All returns the stations in name order. The slice is a copy; the stations
// are not.
func (r *Registry) All() []*Station {
	return slices.Clone(r.stations)
}

// Names returns the station names in ascending order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.stations))
	for i, st := range r.stations {
		names[i] = st.Name
	}
	return names
}
