package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const samplePage = `{
  "updated": "1700000000",
  "total": 25,
  "records": [
    {"station": "Delhi-1", "city": "Delhi", "state": "Delhi", "country": "India",
     "pollutant_id": "PM2.5", "pollutant_min": "20", "pollutant_max": "80",
     "pollutant_avg": "45", "pollutant_unit": "NA"},
    {"station": "Delhi-1", "city": "Delhi", "state": "Delhi", "country": "India",
     "pollutant_id": "CO", "pollutant_min": "NA", "pollutant_max": "NA",
     "pollutant_avg": "NA", "pollutant_unit": "NA"}
  ]
}`

func testClient(retries int) *Client {
	return NewClient(ClientConfig{
		HTTPClient: &http.Client{Timeout: 2 * time.Second},
		Backoff: BackoffConfig{
			MaxRetries:      retries,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
	}, zap.NewNop())
}

func TestClient_FetchDecodesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	page, err := testClient(0).Fetch(context.Background(), srv.URL+"?api-key=k")
	require.NoError(t, err)

	assert.EqualValues(t, 1700000000, page.Updated)
	assert.EqualValues(t, 25, page.Total)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "Delhi-1", page.Records[0].Meta().Name)

	pm := page.Records[0].Reading(int64(page.Updated))
	assert.Equal(t, "PM2.5", pm.ID)
	assert.Equal(t, 45.0, pm.Avg)
	assert.Equal(t, "Delhi-1", pm.StationName)
	assert.Equal(t, int64(1700000000), pm.Timestamp)

	co := page.Records[1].Reading(1)
	assert.Equal(t, 0.0, co.Min)
	assert.Equal(t, 0.0, co.Avg)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	page, err := testClient(3).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(2).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusNotFound} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(status)
			}))
			defer srv.Close()

			_, err := testClient(3).Fetch(context.Background(), srv.URL)
			require.ErrorIs(t, err, ErrUnexpected)
			assert.Contains(t, err.Error(), strconv.Itoa(status))
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestClient_ClientErrorsDoNotTripCircuit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient(3)
	for i := 0; i < 10; i++ {
		_, err := c.Fetch(context.Background(), srv.URL)
		require.ErrorIs(t, err, ErrUnexpected)
		require.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, int32(10), calls.Load())
}

func TestClient_RateLimitedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(0).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestClient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(10).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(6), calls.Load())
}

func TestClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	_, err := testClient(0).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "decode page"))
}

func TestClient_Misconfigured(t *testing.T) {
	c := NewClient(ClientConfig{Backoff: BackoffConfig{InitialInterval: time.Millisecond}}, nil)
	_, err := c.Fetch(context.Background(), "http://127.0.0.1:1")
	assert.ErrorIs(t, err, errNoHTTPClient)

	c = NewClient(ClientConfig{HTTPClient: http.DefaultClient}, nil)
	_, err = c.Fetch(context.Background(), "http://127.0.0.1:1")
	assert.ErrorIs(t, err, errInvalidConfig)
}

func TestClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(3).Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}
