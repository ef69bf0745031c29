// Package cnyconv ties the price annotator, the rate cache and the currency
// preference to a live document.
package cnyconv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/japaniel/cnyconv/pkg/annotate"
	"github.com/japaniel/cnyconv/pkg/db"
	"github.com/japaniel/cnyconv/pkg/loop"
	"github.com/japaniel/cnyconv/pkg/page"
	"github.com/japaniel/cnyconv/pkg/prefs"
	"github.com/japaniel/cnyconv/pkg/price"
	"github.com/japaniel/cnyconv/pkg/rates"
	"github.com/rs/zerolog"
)

// Version returns the current version of the package.
func Version() string { return "0.2.0" }

// ErrUnsupportedCurrency is returned by SelectCurrency for codes outside the
// configured list.
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// snapshotsKept is how many rate snapshots survive each refresh.
const snapshotsKept = 10

// Options configures an Engine.
type Options struct {
	Document *page.Document
	Fetcher  rates.Fetcher

	// DB, when set, stores the currency preference and rate snapshots.
	DB *sql.DB
	// Store overrides the preference store built from DB.
	Store prefs.Store

	DefaultCurrency string
	Currencies      []string
	Locale          string
	Schedule        string
	// RateMaxAge limits which snapshot may seed the cache; zero disables seeding.
	RateMaxAge time.Duration
	// DisableSchedule skips the periodic refresh, e.g. for one-shot runs.
	DisableSchedule bool

	Logger zerolog.Logger
}

// Engine owns the event loop of one document. Every tree mutation, whether
// from the host or from annotation, runs as a loop task; mutation records are
// delivered to the observer after each task.
type Engine struct {
	opts Options
	log  zerolog.Logger

	loop      *loop.Loop
	doc       *page.Document
	cache     *rates.Cache
	store     *prefs.FallbackStore
	pref      *prefs.Preference
	annotator *annotate.Annotator
	scanner   *annotate.Scanner
	observer  *annotate.Observer
	syncer    *annotate.Syncer
	refresher *rates.Refresher

	detach func()
}

// New builds an engine. Nothing runs until Start.
func New(opts Options) (*Engine, error) {
	if opts.Document == nil {
		return nil, errors.New("cnyconv: document is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("cnyconv: rate fetcher is required")
	}
	if len(opts.Currencies) == 0 {
		opts.Currencies = []string{"USD", "EUR", "TRY"}
	}
	for i, c := range opts.Currencies {
		opts.Currencies[i] = prefs.Normalize(c)
	}
	opts.DefaultCurrency = prefs.Normalize(opts.DefaultCurrency)
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = opts.Currencies[0]
	}
	if !slices.Contains(opts.Currencies, opts.DefaultCurrency) {
		return nil, fmt.Errorf("default currency %s: %w", opts.DefaultCurrency, ErrUnsupportedCurrency)
	}

	log := opts.Logger.With().Str("component", "engine").Logger()

	durable := opts.Store
	if durable == nil && opts.DB != nil {
		durable = prefs.NewSQLStore(opts.DB)
	}

	e := &Engine{
		opts:  opts,
		log:   log,
		loop:  loop.New(256),
		doc:   opts.Document,
		cache: rates.NewCache(opts.Fetcher),
		store: prefs.NewFallbackStore(durable, opts.Logger),
		pref:  prefs.NewPreference(opts.DefaultCurrency),
	}

	format := price.NewFormatter(opts.Locale)
	e.annotator = annotate.NewAnnotator(e.doc, e.cache, e.pref, format, opts.Logger)
	e.scanner = annotate.NewScanner(e.annotator, opts.Logger)
	e.observer = annotate.NewObserver(e.annotator, e.scanner, opts.Logger)
	e.syncer = annotate.NewSyncer(e.doc, e.cache, e.pref, format, opts.Logger)

	e.refresher = rates.NewRefresher(e.cache, opts.Schedule, opts.Logger)
	e.refresher.OnRefresh = e.onRefresh

	e.loop.AfterEach = func(context.Context) { e.doc.Flush() }
	e.loop.OnPanic = func(v interface{}) {
		e.log.Error().Interface("panic", v).Msg("Loop task panicked")
	}
	return e, nil
}

// Start loads the saved preference, seeds rates from the newest snapshot,
// performs the first refresh and the initial scan, then keeps watching the
// document until ctx is done. A failed refresh is not fatal.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.pref.Load(ctx, e.store); err != nil {
		e.log.Warn().Err(err).Msg("Could not load currency preference")
	}
	if cur := e.pref.Current(); !slices.Contains(e.opts.Currencies, cur) {
		e.log.Warn().Str("currency", cur).Msg("Saved currency is not supported, using default")
		e.pref.Set(e.opts.DefaultCurrency)
	}
	e.seedFromSnapshot()

	e.loop.Start(ctx)
	err := e.loop.Call(ctx, func(context.Context) {
		e.detach = e.observer.Attach(e.doc)
	})
	if err != nil {
		return fmt.Errorf("attach observer: %w", err)
	}

	_ = e.refresher.RunOnce(ctx)

	var found int
	err = e.loop.Call(ctx, func(context.Context) {
		found = e.scanner.Scan(e.doc.Body())
	})
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}
	e.log.Info().
		Int("conversions", found).
		Str("currency", e.pref.Current()).
		Msg("Initial scan complete")

	if e.opts.DisableSchedule {
		return nil
	}
	return e.refresher.Start(ctx)
}

// Close detaches the observer and stops the loop after queued tasks ran.
func (e *Engine) Close() {
	_ = e.loop.Submit(func(context.Context) {
		if e.detach != nil {
			e.detach()
		}
	})
	e.loop.Close()
}

// Do runs fn on the loop with the document and waits for it, including the
// delivery of the mutation records fn produced.
func (e *Engine) Do(ctx context.Context, fn func(doc *page.Document)) error {
	return e.loop.Call(ctx, func(context.Context) { fn(e.doc) })
}

// Post queues fn on the loop without waiting.
func (e *Engine) Post(fn func(doc *page.Document)) error {
	return e.loop.Submit(func(context.Context) { fn(e.doc) })
}

// Render serializes the current document from the loop.
func (e *Engine) Render(ctx context.Context) (string, error) {
	var (
		out  string
		rerr error
	)
	if err := e.Do(ctx, func(doc *page.Document) { out, rerr = doc.Render() }); err != nil {
		return "", err
	}
	return out, rerr
}

// Currency returns the selected target currency.
func (e *Engine) Currency() string { return e.pref.Current() }

// Currencies returns the supported target currencies.
func (e *Engine) Currencies() []string { return slices.Clone(e.opts.Currencies) }

// Converted returns how many conversion elements were created in response to
// document mutations.
func (e *Engine) Converted(ctx context.Context) (int, error) {
	var n int
	err := e.Do(ctx, func(*page.Document) { n = e.observer.Converted })
	return n, err
}

// SelectCurrency saves code as the preference and re-renders every existing
// conversion in it. A store failure is logged and the choice is kept in memory.
func (e *Engine) SelectCurrency(ctx context.Context, code string) error {
	code = prefs.Normalize(code)
	if !slices.Contains(e.opts.Currencies, code) {
		return fmt.Errorf("%s: %w", code, ErrUnsupportedCurrency)
	}
	if err := e.store.Set(ctx, prefs.CurrencyKey, code); err != nil {
		return err
	}
	if !e.pref.Set(code) {
		return nil
	}
	e.log.Info().Str("currency", code).Msg("Currency selected")
	if _, err := e.cache.Rate(code); err != nil {
		e.log.Warn().Err(err).Msg("Selected currency has no rate yet")
	}
	return e.loop.Call(ctx, e.resync)
}

// Refresh fetches rates now instead of waiting for the schedule.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.refresher.RunOnce(ctx)
}

// onRefresh runs on the refreshing goroutine, never on the loop.
func (e *Engine) onRefresh(t rates.Table) {
	e.saveSnapshot(t)
	if err := e.loop.Submit(e.resync); err != nil {
		e.log.Debug().Err(err).Msg("Loop stopped, refresh not applied")
	}
}

// resync re-renders existing conversions and retries the prices that were
// skipped while no rate was available.
func (e *Engine) resync(context.Context) {
	e.syncer.Sync()
	if e.annotator.Pending() == 0 {
		return
	}
	if n := e.annotator.RetryDeferred(); n > 0 {
		e.log.Info().Int("conversions", n).Msg("Converted deferred prices")
	}
}

func (e *Engine) seedFromSnapshot() {
	if e.opts.DB == nil || e.opts.RateMaxAge <= 0 {
		return
	}
	snap, err := db.LatestRateSnapshot(e.opts.DB, price.SourceCurrency, time.Now().Add(-e.opts.RateMaxAge))
	if errors.Is(err, db.ErrNotFound) {
		return
	}
	if err != nil {
		e.log.Warn().Err(err).Msg("Could not read rate snapshot")
		return
	}
	t := rates.NewTable(snap.Rates, snap.FetchedAt)
	if t.Len() == 0 {
		return
	}
	e.cache.Seed(t)
	e.log.Info().Time("fetched_at", snap.FetchedAt).Int("currencies", t.Len()).Msg("Seeded rates from snapshot")
}

func (e *Engine) saveSnapshot(t rates.Table) {
	if e.opts.DB == nil {
		return
	}
	if _, err := db.SaveRateSnapshot(e.opts.DB, price.SourceCurrency, t.Rates(), t.FetchedAt); err != nil {
		e.log.Warn().Err(err).Msg("Could not save rate snapshot")
		return
	}
	if _, err := db.PruneRateSnapshots(e.opts.DB, price.SourceCurrency, snapshotsKept); err != nil {
		e.log.Warn().Err(err).Msg("Could not prune rate snapshots")
	}
}
