// Package poller drives the acquisition pipeline: a fixed-cadence evaluator
// picks each sport's polling interval from its game lifecycle state and
// keeps exactly one recurring timer per sport, replacing it when the cadence
// changes.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"oddsboard/internal/cache"
	"oddsboard/internal/dedup"
	"oddsboard/internal/lifecycle"
	"oddsboard/internal/odds"
	"oddsboard/internal/provider"
	"oddsboard/internal/snapshot"
)

const defaultEvaluateEvery = 5 * time.Minute

// Options tune poller behaviour.
type Options struct {
	Sports        []string
	EvaluateEvery time.Duration
}

type sportEntry struct {
	id       cron.EntryID
	interval time.Duration
}

// Poller owns the evaluator timer and the per-sport timers.
type Poller struct {
	opts      Options
	cron      *cron.Cron
	fetcher   provider.OddsFetcher
	coalescer *dedup.Coalescer
	snapshots *snapshot.Store
	cache     *cache.Cache
	tracker   *lifecycle.Tracker
	logger    zerolog.Logger

	baseCtx context.Context
	mu      sync.Mutex
	entries map[string]sportEntry
	started bool
}

// New constructs a Poller.
func New(
	opts Options,
	fetcher provider.OddsFetcher,
	coalescer *dedup.Coalescer,
	snapshots *snapshot.Store,
	oddsCache *cache.Cache,
	tracker *lifecycle.Tracker,
	logger zerolog.Logger,
) *Poller {
	if opts.EvaluateEvery <= 0 {
		opts.EvaluateEvery = defaultEvaluateEvery
	}
	return &Poller{
		opts:      opts,
		cron:      cron.New(),
		fetcher:   fetcher,
		coalescer: coalescer,
		snapshots: snapshots,
		cache:     oddsCache,
		tracker:   tracker,
		logger:    logger.With().Str("component", "poller").Logger(),
		entries:   make(map[string]sportEntry),
	}
}

// Start evaluates every sport once, polls each immediately, installs the
// recurring evaluator, and starts the timers.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("poller already started")
	}
	p.started = true
	p.baseCtx = ctx
	p.mu.Unlock()

	if len(p.opts.Sports) == 0 {
		return fmt.Errorf("no sports configured")
	}

	p.Evaluate(ctx)

	for _, sport := range p.opts.Sports {
		go p.tick(sport)
	}

	if _, err := p.cron.AddFunc(everySpec(p.opts.EvaluateEvery), func() {
		p.Evaluate(p.baseCtx)
	}); err != nil {
		return fmt.Errorf("install evaluator: %w", err)
	}

	p.cron.Start()
	p.logger.Info().
		Strs("sports", p.opts.Sports).
		Dur("evaluate_every", p.opts.EvaluateEvery).
		Msg("poller started")
	return nil
}

// Stop cancels the evaluator and every per-sport timer and waits for any
// running tick to finish.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()

	p.mu.Lock()
	p.entries = make(map[string]sportEntry)
	p.started = false
	p.mu.Unlock()

	p.logger.Info().Msg("poller stopped")
}

// Evaluate resolves each sport's interval and reinstalls its timer when the
// cadence changed. One sport's failure never blocks the others.
func (p *Poller) Evaluate(ctx context.Context) {
	for _, sport := range p.opts.Sports {
		interval, err := p.tracker.PollingInterval(ctx, sport)
		if err != nil {
			p.logger.Error().Err(err).Str("sport", sport).Msg("failed to resolve polling interval")
			continue
		}
		p.installSport(sport, interval)
	}
}

// Interval reports the currently installed interval for a sport; zero when
// no timer is installed.
func (p *Poller) Interval(sport string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[sport].interval
}

// installSport replaces the sport's timer when the interval changed.
// Stop-then-replace: two concurrent timers for one sport must never exist.
func (p *Poller) installSport(sport string, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, exists := p.entries[sport]
	if exists && current.interval == interval {
		return
	}
	if exists {
		p.cron.Remove(current.id)
	}

	id, err := p.cron.AddFunc(everySpec(interval), func() {
		p.tick(sport)
	})
	if err != nil {
		p.logger.Error().Err(err).Str("sport", sport).Msg("failed to install sport timer")
		delete(p.entries, sport)
		return
	}

	p.entries[sport] = sportEntry{id: id, interval: interval}
	p.logger.Info().Str("sport", sport).Dur("interval", interval).Msg("polling interval installed")
}

// tick runs one acquisition pass for a sport: coalesced fetch, snapshot
// persistence, cache refresh. Failures are logged and contained here; a
// single sport's bad day must not halt the scheduler.
func (p *Poller) tick(sport string) {
	ctx := p.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}

	events, err := p.coalescer.GetOrCreate(ctx, sport, func(fetchCtx context.Context) ([]odds.Event, error) {
		return p.fetcher.FetchOdds(fetchCtx, sport)
	})
	if err != nil {
		p.logger.Error().Err(err).Str("sport", sport).Msg("poll tick failed")
		return
	}

	if len(events) == 0 {
		p.logger.Debug().Str("sport", sport).Msg("no events for sport")
		return
	}

	result := p.snapshots.SaveBatch(ctx, events, nil)
	p.cache.Set(sport, events)

	p.logger.Info().
		Str("sport", sport).
		Int("events", len(events)).
		Int("saved", result.Saved).
		Int("failed", result.Failed).
		Msg("poll tick complete")
}

func everySpec(interval time.Duration) string {
	return "@every " + interval.String()
}
