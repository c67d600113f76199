// Package service implements the user-facing read path: serve cached odds
// immediately (stale or not) and only wait on the upstream when there is
// nothing at all to show.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"oddsboard/internal/cache"
	"oddsboard/internal/dedup"
	"oddsboard/internal/odds"
	"oddsboard/internal/provider"
)

const defaultRequestTimeout = 30 * time.Second

// Options tune read-path behaviour.
type Options struct {
	// RequestTimeout bounds the caller-visible wait on a cache miss. The
	// underlying fetch keeps running past it and still populates the cache
	// for the next caller.
	RequestTimeout time.Duration
}

// Service answers odds lookups for one sport at a time.
type Service struct {
	opts      Options
	cache     *cache.Cache
	coalescer *dedup.Coalescer
	fetcher   provider.OddsFetcher
	logger    zerolog.Logger
}

// New constructs the read-path service.
func New(opts Options, oddsCache *cache.Cache, coalescer *dedup.Coalescer, fetcher provider.OddsFetcher, logger zerolog.Logger) *Service {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	return &Service{
		opts:      opts,
		cache:     oddsCache,
		coalescer: coalescer,
		fetcher:   fetcher,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// GetOdds returns the odds board for a sport. Fresh cache hits return
// directly; stale hits return the stale payload while a coalesced refresh
// runs in the background; a miss waits on a coalesced upstream fetch,
// bounded by the request timeout.
func (s *Service) GetOdds(ctx context.Context, sportKey string) ([]odds.Event, error) {
	key := cache.SanitizeKey(sportKey)

	events, stale, ok := s.cache.Get(key)
	if ok && !stale {
		s.logger.Debug().Str("sport", key).Int("count", len(events)).Msg("serving fresh cache")
		return events, nil
	}
	if ok {
		s.logger.Debug().Str("sport", key).Int("count", len(events)).Msg("serving stale cache, refreshing in background")
		go s.refresh(key)
		return events, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	fetched, err := s.coalescer.GetOrCreate(reqCtx, key, s.producer(key))
	if err != nil {
		return nil, err
	}
	return fetched, nil
}

// refresh performs a detached coalesced fetch for a stale key. Errors are
// logged only; the stale payload already went out.
func (s *Service) refresh(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()

	if _, err := s.coalescer.GetOrCreate(ctx, key, s.producer(key)); err != nil {
		s.logger.Warn().Err(err).Str("sport", key).Msg("background refresh failed")
	}
}

// producer builds the coalesced fetch-and-cache closure for a key.
func (s *Service) producer(key string) dedup.ProducerFunc {
	return func(ctx context.Context) ([]odds.Event, error) {
		events, err := s.fetcher.FetchOdds(ctx, key)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, events)
		return events, nil
	}
}
