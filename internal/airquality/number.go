package airquality

import (
	"math"
	"strconv"
	"strings"
)

// Number is a float64 that decodes leniently from JSON. The upstream feed
// sends readings as strings and uses placeholders such as "NA" when a monitor
// reported nothing; anything that is not a finite number decodes to 0.
type Number float64

// UnmarshalJSON accepts a JSON number or string.
func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number(parseFloatOrZero(unquote(b)))
	return nil
}

// Integer is an int64 with the same lenient decoding as Number.
type Integer int64

// UnmarshalJSON accepts a JSON number or string; fractions are truncated.
func (i *Integer) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*i = Integer(v)
		return nil
	}
	*i = Integer(parseFloatOrZero(s))
	return nil
}

func unquote(b []byte) string {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		if u, err := strconv.Unquote(s); err == nil {
			s = u
		}
	}
	return strings.TrimSpace(s)
}

// parseFloatOrZero parses s as float64, returning 0 on failure.
func parseFloatOrZero(s string) float64 {
	if s == "" || s == "null" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
