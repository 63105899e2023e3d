package source

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/i474232898/airq/internal/airquality"
)

// Page is one window of the feed.
type Page struct {
	Updated airquality.Integer `json:"updated"`
	Total   airquality.Integer `json:"total"`
	Records []RawRecord        `json:"records"`
}

// RawRecord is a feed entry: one pollutant reading together with the
// metadata of the station that reported it.
type RawRecord struct {
	Station     string            `json:"station"`
	City        string            `json:"city"`
	State       string            `json:"state"`
	Country     string            `json:"country"`
	PollutantID string            `json:"pollutant_id"`
	Min         airquality.Number `json:"pollutant_min"`
	Max         airquality.Number `json:"pollutant_max"`
	Avg         airquality.Number `json:"pollutant_avg"`
	Unit        string            `json:"pollutant_unit"`
}

// Meta returns the station metadata carried by the entry.
func (r RawRecord) Meta() airquality.StationMeta {
	return airquality.StationMeta{
		Name:    strings.TrimSpace(r.Station),
		City:    r.City,
		State:   r.State,
		Country: r.Country,
	}
}

// Reading returns the entry as a pollutant record collected at ts.
func (r RawRecord) Reading(ts int64) airquality.PollutantRecord {
	return airquality.PollutantRecord{
		ID:          strings.TrimSpace(r.PollutantID),
		Min:         float64(r.Min),
		Max:         float64(r.Max),
		Avg:         float64(r.Avg),
		Unit:        r.Unit,
		Timestamp:   ts,
		StationName: strings.TrimSpace(r.Station),
	}
}

// DecodePage parses a page body.
func DecodePage(r io.Reader) (*Page, error) {
	var p Page
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &p, nil
}
