// Package dedup coalesces concurrent upstream fetches: at most one producer
// runs per key, and every caller waiting on that key shares its result.
package dedup

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"oddsboard/internal/odds"
)

// ProducerFunc performs the actual upstream work for a key.
type ProducerFunc func(ctx context.Context) ([]odds.Event, error)

type pending struct {
	done   chan struct{}
	events []odds.Event
	err    error
}

// Coalescer merges concurrent identical requests into a single in-flight
// producer invocation per key.
type Coalescer struct {
	mu       sync.Mutex
	inFlight map[string]*pending
	logger   zerolog.Logger
}

// New constructs a Coalescer.
func New(logger zerolog.Logger) *Coalescer {
	return &Coalescer{
		inFlight: make(map[string]*pending),
		logger:   logger.With().Str("component", "dedup").Logger(),
	}
}

// GetOrCreate returns the pending result for key if a producer is already in
// flight, otherwise starts fn and registers it. The pending entry is removed
// before waiters are released, success or failure, so a failed fetch never
// blocks the next attempt. The producer runs detached from any single
// caller's context: a caller whose ctx expires unblocks alone while the
// fetch completes for everyone else (and for the cache).
func (c *Coalescer) GetOrCreate(ctx context.Context, key string, fn ProducerFunc) ([]odds.Event, error) {
	c.mu.Lock()
	if p, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		c.logger.Debug().Str("key", key).Msg("joining in-flight request")
		return c.wait(ctx, p)
	}

	p := &pending{done: make(chan struct{})}
	c.inFlight[key] = p
	c.mu.Unlock()

	c.logger.Debug().Str("key", key).Msg("starting new request")

	go func() {
		events, err := fn(context.WithoutCancel(ctx))

		c.mu.Lock()
		delete(c.inFlight, key)
		c.mu.Unlock()

		p.events, p.err = events, err
		close(p.done)
	}()

	return c.wait(ctx, p)
}

// Pending reports the number of in-flight keys.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

func (c *Coalescer) wait(ctx context.Context, p *pending) ([]odds.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return p.events, p.err
	}
}
