// Package source reads the paginated air quality feed: a cursor that plans the
// page URLs of one collection run and a resilient client that fetches them.
package source

import (
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"
)

// DefaultPageLimit is the page size used when none is configured.
const DefaultPageLimit = 10

var errBadEndpoint = errors.New("endpoint must be an absolute http(s) URL")

// Cursor walks the offset/limit windows of the feed. The total number of
// records is either preset or learned from the first page the server returns.
//
// A Cursor is single use. Ranging over URLs a second time resumes where the
// previous range stopped, and an exhausted cursor yields nothing.
type Cursor struct {
	endpoint *url.URL
	apiKey   string
	format   string

	limit  int
	offset int

	total     int
	totalSet  bool
	exhausted bool
}

// NewCursor returns a cursor positioned at offset 0 with an unknown total.
// A non-positive limit selects DefaultPageLimit.
func NewCursor(endpoint, apiKey, format string, limit int) (*Cursor, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", errBadEndpoint, endpoint)
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if format == "" {
		format = "json"
	}
	return &Cursor{endpoint: u, apiKey: apiKey, format: format, limit: limit}, nil
}

// WithTotal presets the total so the first page need not report it.
func (c *Cursor) WithTotal(total int) *Cursor {
	c.Learn(total)
	return c
}

// Learn records the server-reported total. Only the first call has an
// effect; it reports whether the total was recorded.
func (c *Cursor) Learn(total int) bool {
	if c.totalSet {
		return false
	}
	c.total = total
	c.totalSet = true
	return true
}

// Total returns the known total and whether it has been learned.
func (c *Cursor) Total() (int, bool) {
	return c.total, c.totalSet
}

// Limit returns the page size.
func (c *Cursor) Limit() int { return c.limit }

// Offset returns the offset of the next page to be yielded.
func (c *Cursor) Offset() int { return c.offset }

// Exhausted reports whether every page has been handed out.
func (c *Cursor) Exhausted() bool { return c.exhausted }

// URLs yields the request URL of each remaining page. The consumer is
// expected to Learn the total while handling the first page; if it has not
// by the time that page is consumed, nothing further can be addressed and
// the cursor exhausts.
func (c *Cursor) URLs() iter.Seq[string] {
	return func(yield func(string) bool) {
		for !c.exhausted {
			if c.totalSet && c.total <= 0 {
				c.finish()
				return
			}
			more := yield(c.pageURL())
			c.advance()
			if !more {
				return
			}
		}
	}
}

func (c *Cursor) advance() {
	c.offset += c.limit
	if !c.totalSet || c.offset >= c.total {
		c.finish()
	}
}

func (c *Cursor) finish() {
	c.offset = 0
	c.exhausted = true
}

func (c *Cursor) pageURL() string {
	u := *c.endpoint
	q := u.Query()
	q.Set("api-key", c.apiKey)
	q.Set("format", c.format)
	q.Set("offset", strconv.Itoa(c.offset))
	q.Set("limit", strconv.Itoa(c.limit))
	u.RawQuery = q.Encode()
	return u.String()
}
