package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/airq/internal/airquality"
	"github.com/i474232898/airq/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. history may be
// nil.
func RegisterRoutes(app *fiber.App, memStore *store.MemoryStore, history History) {
	v1 := app.Group("/api/v1")

	v1.Get("/stations", func(c *fiber.Ctx) error {
		q := stationFilter{State: c.Query("state"), City: c.Query("city")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snap, err := memStore.GetLatest()
		if err != nil {
			return storeError(err, "no dataset published yet")
		}

		names := make([]string, 0, snap.Dataset.Len())
		for _, st := range snap.Dataset.Stations() {
			if q.matches(st) {
				names = append(names, st.Name)
			}
		}
		return c.JSON(fiber.Map{
			"collected_at": snap.Run.FinishedAt,
			"stations":     names,
		})
	})

	v1.Get("/stations/:name", func(c *fiber.Ctx) error {
		st, err := memStore.GetStation(c.Params("name"))
		if err != nil {
			return storeError(err, "unknown station")
		}
		return c.JSON(describeStation(st))
	})

	v1.Get("/stations/:name/pollutants/:id", func(c *fiber.Ctx) error {
		var req readingsQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if history != nil && startsBeforeDataset(memStore, req) {
			readings, err := history.Readings(c.UserContext(), req.Station, req.Pollutant, req.From.Unix(), req.To.Unix())
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "failed to read archived readings")
			}
			if len(readings) == 0 {
				return fiber.NewError(fiber.StatusNotFound, "no readings for requested range")
			}
			return c.JSON(readingsResponse(req, "archive", readings))
		}

		readings, err := memStore.GetRange(req.Station, req.Pollutant, req.From, req.To)
		if err != nil {
			return storeError(err, "no readings for requested range")
		}
		return c.JSON(readingsResponse(req, "dataset", readings))
	})

	v1.Get("/states", func(c *fiber.Ctx) error {
		snap, err := memStore.GetLatest()
		if err != nil {
			return storeError(err, "no dataset published yet")
		}
		if c.QueryBool("names_only") {
			return c.JSON(snap.Dataset.States())
		}
		return c.JSON(snap.Dataset.CitiesByState())
	})

	v1.Get("/states/:state/stations", func(c *fiber.Ctx) error {
		snap, err := memStore.GetLatest()
		if err != nil {
			return storeError(err, "no dataset published yet")
		}
		names, ok := snap.Dataset.StationsByState()[c.Params("state")]
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "unknown state")
		}
		return c.JSON(names)
	})

	v1.Get("/cities", func(c *fiber.Ctx) error {
		snap, err := memStore.GetLatest()
		if err != nil {
			return storeError(err, "no dataset published yet")
		}
		return c.JSON(snap.Dataset.StationsByCity())
	})

	v1.Get("/runs", func(c *fiber.Ctx) error {
		runs := memStore.Runs()
		if runs == nil {
			runs = []store.RunRecord{}
		}
		return c.JSON(runs)
	})
}

func storeError(err error, notFound string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, notFound)
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to read air quality data")
}

// stationFilter holds the optional filters of the station listing.
type stationFilter struct {
	State string `validate:"omitempty,max=64,printascii"`
	City  string `validate:"omitempty,max=64,printascii"`
}

func (f stationFilter) matches(st *airquality.Station) bool {
	return (f.State == "" || st.State == f.State) && (f.City == "" || st.City == f.City)
}

type stationView struct {
	airquality.StationMeta
	Buckets    int       `json:"buckets"`
	Readings   int       `json:"readings"`
	Pollutants []string  `json:"pollutants"`
	From       time.Time `json:"from,omitzero"`
	To         time.Time `json:"to,omitzero"`
}

func describeStation(st *airquality.Station) stationView {
	v := stationView{
		StationMeta: st.StationMeta,
		Buckets:     st.RecordCount(),
		Readings:    st.ReadingCount(),
		Pollutants:  st.PollutantIDs(),
	}
	if from, to, err := st.TimeRange(); err == nil {
		v.From, v.To = from, to
	}
	return v
}

type readingView struct {
	At   time.Time `json:"at"`
	Min  float64   `json:"min"`
	Max  float64   `json:"max"`
	Avg  float64   `json:"avg"`
	Unit string    `json:"unit"`
}

func readingsResponse(q readingsQuery, source string, readings []airquality.PollutantRecord) fiber.Map {
	return fiber.Map{
		"station":   q.Station,
		"pollutant": q.Pollutant,
		"source":    source,
		"readings":  toReadings(readings),
	}
}

// startsBeforeDataset reports whether q reaches further back than the oldest
// bucket the published dataset holds for the station.
func startsBeforeDataset(memStore *store.MemoryStore, q readingsQuery) bool {
	st, err := memStore.GetStation(q.Station)
	if err != nil {
		return true
	}
	oldest, err := st.MinTimestamp()
	if err != nil {
		return true
	}
	return q.From.Unix() < oldest
}

func toReadings(in []airquality.PollutantRecord) []readingView {
	out := make([]readingView, 0, len(in))
	for _, r := range in {
		out = append(out, readingView{
			At:   time.Unix(r.Timestamp, 0).UTC(),
			Min:  r.Min,
			Max:  r.Max,
			Avg:  r.Avg,
			Unit: r.Unit,
		})
	}
	return out
}

// readingsQuery holds path and query parameters of the readings endpoint.
type readingsQuery struct {
	Station   string    `validate:"required"`
	Pollutant string    `validate:"required,max=16"`
	From      time.Time `validate:"required"`
	To        time.Time `validate:"required,gtefield=From"`
}

// bind reads the path parameters and the optional from/to range; an absent
// bound leaves that side of the range open.
func (q *readingsQuery) bind(c *fiber.Ctx) error {
	q.Station = c.Params("name")
	q.Pollutant = c.Params("id")

	q.From = time.Unix(0, 0).UTC()
	q.To = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

	if s := c.Query("from"); s != "" {
		from, err := parseTime(s)
		if err != nil {
			return err
		}
		q.From = from
	}
	if s := c.Query("to"); s != "" {
		to, err := parseTime(s)
		if err != nil {
			return err
		}
		q.To = to
	}
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
