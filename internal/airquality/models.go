package airquality

import (
	"errors"
)

var (
	// ErrEmptyStore is returned when a timestamp bound is requested from a station
	// that has not received any reading yet.
	ErrEmptyStore = errors.New("station has no records")

	// ErrUnknownStation is returned when a reading is merged for a station that
	// was never registered in the dataset.
	ErrUnknownStation = errors.New("unknown station")
)

// PollutantRecord is a single measurement of one pollutant at one station,
// stamped with the collection time reported by the upstream API.
type PollutantRecord struct {
	ID   string  `json:"id"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Avg  float64 `json:"avg"`
	Unit string  `json:"unit"`

	// Timestamp and StationName are implied by where the record is stored,
	// so they are not part of the persisted form.
	Timestamp   int64  `json:"-"`
	StationName string `json:"-"`
}

// StationMeta identifies a monitoring station.
type StationMeta struct {
	Name    string `json:"name"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// Station is a monitoring station together with the readings collected from it,
// bucketed by collection timestamp.
type Station struct {
	StationMeta

	records map[int64][]PollutantRecord
}

// NewStation creates a station with an empty record store.
func NewStation(meta StationMeta) *Station {
	return &Station{
		StationMeta: meta,
		records:     make(map[int64][]PollutantRecord),
	}
}

// Stats summarises the size of a dataset.
type Stats struct {
	Stations int `json:"stations"`
	Buckets  int `json:"buckets"`
	Readings int `json:"readings"`
}
