package rates

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewTableDropsInvalidRates(t *testing.T) {
	tbl := NewTable(map[string]float64{
		"USD": 0.14,
		"BAD": -1,
		"NAN": math.NaN(),
		"INF": math.Inf(1),
		"NIL": 0,
	}, time.Now())

	assert.Equal(t, 1, tbl.Len())
	r, ok := tbl.Get("USD")
	assert.True(t, ok)
	assert.Equal(t, 0.14, r)
	_, ok = tbl.Get("BAD")
	assert.False(t, ok)
}

func TestHTTPFetcher(t *testing.T) {
	srv := rateServer(t, http.StatusOK, `{"result":"success","rates":{"USD":0.14,"EUR":0.13}}`)
	f := NewHTTPFetcher(srv.URL, time.Second, zerolog.Nop())

	tbl, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	eur, ok := tbl.Get("EUR")
	assert.True(t, ok)
	assert.Equal(t, 0.13, eur)
}

func TestHTTPFetcherFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"rates":{"USD":0.14}}`},
		{"malformed json", http.StatusOK, `{"rates":`},
		{"missing rates", http.StatusOK, `{"result":"error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := rateServer(t, tt.status, tt.body)
			_, err := NewHTTPFetcher(srv.URL, time.Second, zerolog.Nop()).Fetch(context.Background())
			require.Error(t, err)
			var fe *FetchError
			assert.True(t, errors.As(err, &fe), "expected *FetchError, got %T", err)
		})
	}
}

type stubFetcher struct {
	table Table
	err   error
	calls int32
}

func (s *stubFetcher) Fetch(ctx context.Context) (Table, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.table, s.err
}

func TestCacheRefreshKeepsPreviousTableOnFailure(t *testing.T) {
	f := &stubFetcher{table: NewTable(map[string]float64{"USD": 0.14}, time.Now())}
	c := NewCache(f)

	_, ok := c.Get("USD")
	assert.False(t, ok, "empty cache must report unavailable")

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	f.err = &FetchError{URL: "stub", Err: errors.New("boom")}
	_, err = c.Refresh(context.Background())
	require.Error(t, err)

	r, ok := c.Get("USD")
	assert.True(t, ok)
	assert.Equal(t, 0.14, r)

	_, err = c.Rate("EUR")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCacheRefreshRejectsEmptyTable(t *testing.T) {
	f := &stubFetcher{table: NewTable(map[string]float64{"USD": 0.14}, time.Now())}
	c := NewCache(f)
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	f.table = NewTable(map[string]float64{"BAD": -1}, time.Now())
	_, err = c.Refresh(context.Background())

	var fe *FetchError
	require.True(t, errors.As(err, &fe), "expected *FetchError, got %T", err)
	assert.ErrorIs(t, err, ErrEmptyTable)

	r, ok := c.Get("USD")
	assert.True(t, ok, "empty fetch keeps the previous table")
	assert.Equal(t, 0.14, r)
}

func TestRefresherRunOnce(t *testing.T) {
	f := &stubFetcher{table: NewTable(map[string]float64{"USD": 0.14}, time.Now())}
	r := NewRefresher(NewCache(f), "", zerolog.Nop())

	var notified int32
	r.OnRefresh = func(Table) { atomic.AddInt32(&notified, 1) }

	require.NoError(t, r.RunOnce(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&notified))

	f.err = errors.New("offline")
	assert.Error(t, r.RunOnce(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&notified), "failed cycle must not notify")
}

func TestRefresherSchedule(t *testing.T) {
	f := &stubFetcher{table: NewTable(map[string]float64{"USD": 0.14}, time.Now())}
	r := NewRefresher(NewCache(f), "@every 1s", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Start(ctx))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&f.calls) >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRefresherRejectsBadSchedule(t *testing.T) {
	r := NewRefresher(NewCache(&stubFetcher{}), "not a schedule", zerolog.Nop())
	assert.Error(t, r.Start(context.Background()))
}
