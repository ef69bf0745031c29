package rates

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrUnavailable is returned by Cache.Rate for a currency missing from the table.
var ErrUnavailable = errors.New("rate unavailable")

// ErrEmptyTable is wrapped in a FetchError when a fetch succeeds without rates.
var ErrEmptyTable = errors.New("rate table is empty")

// Table maps currency codes to rates relative to the source currency.
// A Table is never modified after NewTable returns.
type Table struct {
	rates     map[string]float64
	FetchedAt time.Time
}

// NewTable copies raw into a Table, dropping entries that are not positive finite numbers.
func NewTable(raw map[string]float64, fetchedAt time.Time) Table {
	rates := make(map[string]float64, len(raw))
	for code, r := range raw {
		if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		rates[code] = r
	}
	return Table{rates: rates, FetchedAt: fetchedAt}
}

// Get returns the rate for code.
func (t Table) Get(code string) (float64, bool) {
	r, ok := t.rates[code]
	return r, ok
}

// Len returns the number of usable rates.
func (t Table) Len() int { return len(t.rates) }

// Rates returns a copy of the table contents.
func (t Table) Rates() map[string]float64 {
	out := make(map[string]float64, len(t.rates))
	for k, v := range t.rates {
		out[k] = v
	}
	return out
}

// Fetcher retrieves a fresh rate table from a remote source.
type Fetcher interface {
	Fetch(ctx context.Context) (Table, error)
}

// FetchError reports a failed refresh. The cached table is left untouched.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch rates from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Cache holds the latest known rate table. Refresh is the only writer.
type Cache struct {
	fetcher Fetcher

	mu    sync.RWMutex
	table Table
	ok    bool
}

// NewCache creates an empty cache backed by f.
func NewCache(f Fetcher) *Cache {
	return &Cache{fetcher: f}
}

// Refresh fetches a new table and replaces the cached one on success.
// On failure the previous table is kept and the error is returned.
func (c *Cache) Refresh(ctx context.Context) (Table, error) {
	t, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return Table{}, err
	}
	if t.Len() == 0 {
		return Table{}, &FetchError{URL: c.fetcherURL(), Err: ErrEmptyTable}
	}
	c.Seed(t)
	return t, nil
}

func (c *Cache) fetcherURL() string {
	if h, ok := c.fetcher.(*HTTPFetcher); ok {
		return h.URL
	}
	return ""
}

// Seed installs t without fetching, e.g. a persisted snapshot at startup.
func (c *Cache) Seed(t Table) {
	c.mu.Lock()
	c.table = t
	c.ok = true
	c.mu.Unlock()
}

// Get returns the rate for code, or false if no table is loaded or the code is absent.
func (c *Cache) Get(code string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ok {
		return 0, false
	}
	return c.table.Get(code)
}

// Rate is Get with an error for the unavailable case.
func (c *Cache) Rate(code string) (float64, error) {
	r, ok := c.Get(code)
	if !ok {
		return 0, fmt.Errorf("%s: %w", code, ErrUnavailable)
	}
	return r, nil
}

// Table returns the current table and whether one has been loaded.
func (c *Cache) Table() (Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table, c.ok
}
