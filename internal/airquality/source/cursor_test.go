package source

import (
	"net/url"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEndpoint = "https://api.data.gov.in/resource/3b01bcb8-0b14-4abf-b6f2-c1bfd384ba69"

func newTestCursor(t *testing.T, limit int) *Cursor {
	t.Helper()
	c, err := NewCursor(testEndpoint, "secret", "json", limit)
	require.NoError(t, err)
	return c
}

func offsets(t *testing.T, urls []string) []string {
	t.Helper()
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		out = append(out, u.Query().Get("offset"))
	}
	return out
}

func TestCursor_PresetTotalScenario(t *testing.T) {
	c := newTestCursor(t, 10).WithTotal(25)

	got := slices.Collect(c.URLs())

	assert.Equal(t, []string{"0", "10", "20"}, offsets(t, got))
	assert.True(t, c.Exhausted())
	assert.Equal(t, 0, c.Offset())
}

func TestCursor_URLCarriesQuery(t *testing.T) {
	c := newTestCursor(t, 10).WithTotal(1)

	got := slices.Collect(c.URLs())
	require.Len(t, got, 1)

	u, err := url.Parse(got[0])
	require.NoError(t, err)
	assert.Equal(t, "api.data.gov.in", u.Host)
	assert.Equal(t, "/resource/3b01bcb8-0b14-4abf-b6f2-c1bfd384ba69", u.Path)
	q := u.Query()
	assert.Equal(t, "secret", q.Get("api-key"))
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "0", q.Get("offset"))
	assert.Equal(t, "10", q.Get("limit"))
}

func TestCursor_YieldsCeilTotalOverLimit(t *testing.T) {
	for _, limit := range []int{1, 3, 10, 7} {
		for total := -2; total <= 40; total++ {
			c := newTestCursor(t, limit).WithTotal(total)
			got := offsets(t, slices.Collect(c.URLs()))

			want := 0
			if total > 0 {
				want = (total + limit - 1) / limit
			}
			assert.Len(t, got, want, "total %d limit %d", total, limit)

			zeros := 0
			for _, o := range got {
				if o == "0" {
					zeros++
				}
			}
			assert.LessOrEqual(t, zeros, 1, "offset 0 repeated for total %d limit %d", total, limit)
			assert.True(t, c.Exhausted())
		}
	}
}

func TestCursor_LearnsTotalFromFirstPage(t *testing.T) {
	c := newTestCursor(t, 10)
	_, known := c.Total()
	require.False(t, known)

	var got []string
	for u := range c.URLs() {
		got = append(got, u)
		c.Learn(25)
	}

	assert.Equal(t, []string{"0", "10", "20"}, offsets(t, got))
	total, known := c.Total()
	assert.True(t, known)
	assert.Equal(t, 25, total)
}

func TestCursor_LearnOnlyOnce(t *testing.T) {
	c := newTestCursor(t, 10)
	assert.True(t, c.Learn(30))
	assert.False(t, c.Learn(1000))
	total, _ := c.Total()
	assert.Equal(t, 30, total)
}

func TestCursor_UnknownTotalStopsAfterFirstPage(t *testing.T) {
	c := newTestCursor(t, 10)

	got := slices.Collect(c.URLs())

	assert.Equal(t, []string{"0"}, offsets(t, got))
	assert.True(t, c.Exhausted())
}

func TestCursor_NotRestartable(t *testing.T) {
	c := newTestCursor(t, 10).WithTotal(50)

	var first []string
	for u := range c.URLs() {
		first = append(first, u)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"0", "10"}, offsets(t, first))
	assert.Equal(t, 20, c.Offset())

	rest := slices.Collect(c.URLs())
	assert.Equal(t, []string{"20", "30", "40"}, offsets(t, rest))

	assert.Empty(t, slices.Collect(c.URLs()), "an exhausted cursor yields nothing")
}

func TestNewCursor(t *testing.T) {
	c, err := NewCursor(testEndpoint, "k", "", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageLimit, c.Limit())

	_, err = NewCursor("example.com/feed", "k", "json", 10)
	assert.ErrorIs(t, err, errBadEndpoint)

	_, err = NewCursor("ftp://example.com/feed", "k", "json", 10)
	assert.ErrorIs(t, err, errBadEndpoint)
}
