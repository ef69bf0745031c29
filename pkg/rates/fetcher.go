package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultURL serves rates relative to CNY.
const DefaultURL = "https://open.er-api.com/v6/latest/CNY"

// maxBodySize caps the rate response; real payloads are a few KB.
const maxBodySize = 1 << 20

// HTTPFetcher fetches {"rates": {...}} documents over HTTP.
type HTTPFetcher struct {
	URL    string
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

// NewHTTPFetcher creates a fetcher for url with the given request timeout.
func NewHTTPFetcher(url string, timeout time.Duration, log zerolog.Logger) *HTTPFetcher {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		URL:    url,
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("client", "rates").Logger(),
		now:    time.Now,
	}
}

type rateResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// Fetch performs one GET. Any transport error, non-2xx status, malformed body or
// missing "rates" field is reported as a *FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context) (Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return Table{}, &FetchError{URL: f.URL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", "cnyconv")

	resp, err := f.client.Do(req)
	if err != nil {
		return Table{}, &FetchError{URL: f.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Table{}, &FetchError{URL: f.URL, Err: fmt.Errorf("unexpected status: %s", resp.Status)}
	}

	var body rateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&body); err != nil {
		return Table{}, &FetchError{URL: f.URL, Err: fmt.Errorf("decode body: %w", err)}
	}
	if body.Rates == nil {
		return Table{}, &FetchError{URL: f.URL, Err: errors.New("response has no rates")}
	}

	t := NewTable(body.Rates, f.now())
	f.log.Debug().Int("currencies", t.Len()).Msg("Rates fetched")
	return t, nil
}
