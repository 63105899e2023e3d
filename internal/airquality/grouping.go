package airquality

import "slices"

// StationNames returns every station name in ascending order.
func (d *Dataset) StationNames() []string {
	return d.registry.Names()
}

// StationsByState groups station names by state. Names keep registry order.
func (d *Dataset) StationsByState() map[string][]string {
	out := make(map[string][]string)
	for _, st := range d.registry.stations {
		out[st.State] = append(out[st.State], st.Name)
	}
	return out
}

// StationsByCity groups station names by city. Names keep registry order.
func (d *Dataset) StationsByCity() map[string][]string {
	out := make(map[string][]string)
	for _, st := range d.registry.stations {
		out[st.City] = append(out[st.City], st.Name)
	}
	return out
}

// CitiesByState maps each state to the distinct cities of its stations, sorted.
func (d *Dataset) CitiesByState() map[string][]string {
	seen := make(map[string]map[string]struct{})
	for _, st := range d.registry.stations {
		cities, ok := seen[st.State]
		if !ok {
			cities = make(map[string]struct{})
			seen[st.State] = cities
		}
		cities[st.City] = struct{}{}
	}

	out := make(map[string][]string, len(seen))
	for state, cities := range seen {
		list := make([]string, 0, len(cities))
		for city := range cities {
			list = append(list, city)
		}
		slices.Sort(list)
		out[state] = list
	}
	return out
}

// States returns the distinct states, sorted.
func (d *Dataset) States() []string {
	byState := d.StationsByState()
	states := make([]string, 0, len(byState))
	for state := range byState {
		states = append(states, state)
	}
	slices.Sort(states)
	return states
}
