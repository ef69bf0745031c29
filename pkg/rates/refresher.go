package rates

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSchedule matches the ten minute refresh of the browser script.
const DefaultSchedule = "@every 10m"

// Refresher refreshes a Cache on a cron schedule and reports each successful
// table to OnRefresh. A failed cycle is logged and skipped; the schedule keeps running.
type Refresher struct {
	cache    *Cache
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	log      zerolog.Logger

	// OnRefresh runs after every successful refresh.
	OnRefresh func(Table)
}

// NewRefresher creates a refresher. An empty schedule uses DefaultSchedule.
func NewRefresher(cache *Cache, schedule string, log zerolog.Logger) *Refresher {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Refresher{
		cache:    cache,
		cron:     cron.New(),
		schedule: schedule,
		timeout:  30 * time.Second,
		log:      log.With().Str("component", "refresher").Logger(),
	}
}

// RunOnce performs a single guarded refresh cycle.
func (r *Refresher) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	t, err := r.cache.Refresh(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("Rate refresh failed, keeping previous table")
		return err
	}
	r.log.Info().Int("currencies", t.Len()).Msg("Rates refreshed")
	if r.OnRefresh != nil {
		r.OnRefresh(t)
	}
	return nil
}

// Start registers the refresh job and starts the scheduler. The scheduler stops
// when ctx is done.
func (r *Refresher) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		defer func() {
			if p := recover(); p != nil {
				r.log.Error().Interface("panic", p).Msg("Rate refresh panicked")
			}
		}()
		_ = r.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	r.log.Info().Str("schedule", r.schedule).Msg("Rate refresh scheduled")

	go func() {
		<-ctx.Done()
		<-r.cron.Stop().Done()
		r.log.Info().Msg("Rate refresh stopped")
	}()
	return nil
}
