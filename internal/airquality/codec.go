package airquality

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Persisted layout:
//
//	{"stations": [{"name", "city", "state", "country",
//	  "records": {"<epoch seconds>": [{"id", "min", "max", "avg", "unit"}]}}]}
//
// Stations are written in registry order. A reading's timestamp and station
// are implied by its position and are not repeated.

type datasetDoc[R any] struct {
	Stations []stationDoc[R] `json:"stations"`
}

type stationDoc[R any] struct {
	StationMeta
	Records map[string][]R `json:"records"`
}

// recordIn is the lenient decoding form of a persisted reading.
type recordIn struct {
	ID   string `json:"id"`
	Min  Number `json:"min"`
	Max  Number `json:"max"`
	Avg  Number `json:"avg"`
	Unit string `json:"unit"`
}

// MarshalJSON implements json.Marshaler.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	doc := datasetDoc[PollutantRecord]{
		Stations: make([]stationDoc[PollutantRecord], 0, d.registry.Len()),
	}
	for _, st := range d.registry.stations {
		records := make(map[string][]PollutantRecord, len(st.records))
		for ts, bucket := range st.records {
			records[strconv.FormatInt(ts, 10)] = bucket
		}
		doc.Stations = append(doc.Stations, stationDoc[PollutantRecord]{
			StationMeta: st.StationMeta,
			Records:     records,
		})
	}
	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler. The receiver is rebuilt from
// scratch; stations are re-inserted in sorted position whatever the input
// order, entries repeating a station name merge into it, and bucket keys that
// are not epoch seconds are skipped.
func (d *Dataset) UnmarshalJSON(b []byte) error {
	var doc datasetDoc[recordIn]
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("decode dataset: %w", err)
	}

	fresh := NewDataset()
	for _, sd := range doc.Stations {
		st, _ := fresh.MergeStation(sd.StationMeta)
		for key, bucket := range sd.Records {
			ts, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				continue
			}
			for _, r := range bucket {
				st.AddRecord(PollutantRecord{
					ID:        r.ID,
					Min:       float64(r.Min),
					Max:       float64(r.Max),
					Avg:       float64(r.Avg),
					Unit:      r.Unit,
					Timestamp: ts,
				})
			}
		}
	}
	*d = *fresh
	return nil
}

// Decode reads a dataset in the persisted layout.
func Decode(r io.Reader) (*Dataset, error) {
	d := NewDataset()
	if err := json.NewDecoder(r).Decode(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Encode writes d in the persisted layout, indented.
func (d *Dataset) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return nil
}
