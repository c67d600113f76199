// Package cache holds the most recent odds payload per sport with a short
// freshness window and a longer hard expiry, so callers can serve stale data
// while a refresh runs in the background.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"oddsboard/internal/odds"
)

const (
	defaultStaleAfter = 60 * time.Second
	defaultTTL        = 5 * time.Minute
	defaultMaxKeys    = 100
)

// Options tune cache behaviour.
type Options struct {
	StaleAfter time.Duration
	TTL        time.Duration
	MaxKeys    int
}

type entry struct {
	events     []odds.Event
	capturedAt time.Time
}

// Cache is a bounded in-memory per-sport odds store.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

// New constructs a Cache.
func New(opts Options, logger zerolog.Logger) *Cache {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = defaultMaxKeys
	}
	return &Cache{
		entries: make(map[string]entry),
		opts:    opts,
		logger:  logger.With().Str("component", "cache").Logger(),
		now:     time.Now,
	}
}

// Get returns the cached payload for a sport along with its staleness flag.
// Entries past the hard TTL are treated as absent and evicted. A stale entry
// is still returned; deciding whether to refresh is the caller's job.
func (c *Cache) Get(sportKey string) ([]odds.Event, bool, bool) {
	key := SanitizeKey(sportKey)
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, false
	}

	age := now.Sub(e.capturedAt)
	if age > c.opts.TTL {
		c.mu.Lock()
		// Re-check under the write lock; a Set may have raced the eviction.
		if cur, still := c.entries[key]; still && now.Sub(cur.capturedAt) > c.opts.TTL {
			delete(c.entries, key)
			c.logger.Debug().Str("sport", key).Msg("cache entry hard-expired")
		}
		c.mu.Unlock()
		return nil, false, false
	}

	return e.events, age > c.opts.StaleAfter, true
}

// Set stores the payload for a sport with the current timestamp, clearing
// staleness and resetting the hard expiry. When the cache is full and the
// key is new, the write is dropped; a bad flood of sport keys must not grow
// memory without bound.
func (c *Cache) Set(sportKey string, events []odds.Event) {
	key := SanitizeKey(sportKey)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.opts.MaxKeys {
		c.logger.Warn().Str("sport", key).Int("max_keys", c.opts.MaxKeys).Msg("cache full, dropping set")
		return
	}

	c.entries[key] = entry{events: events, capturedAt: c.now()}
}

// IsFresh reports whether a sport has a cached payload inside the freshness
// window.
func (c *Cache) IsFresh(sportKey string) bool {
	_, stale, ok := c.Get(sportKey)
	return ok && !stale
}

// IsStale reports whether a sport has a cached payload past the freshness
// window but inside the hard TTL.
func (c *Cache) IsStale(sportKey string) bool {
	_, stale, ok := c.Get(sportKey)
	return ok && stale
}

// Age returns the time since the sport's payload was captured. The second
// return is false when the sport is absent or hard-expired.
func (c *Cache) Age(sportKey string) (time.Duration, bool) {
	key := SanitizeKey(sportKey)
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return 0, false
	}
	age := now.Sub(e.capturedAt)
	if age > c.opts.TTL {
		return 0, false
	}
	return age, true
}

// Delete drops a sport's entry.
func (c *Cache) Delete(sportKey string) {
	key := SanitizeKey(sportKey)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// SetClock overrides the time source. Test hook.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// SanitizeKey folds a sport key to the alphanumeric+underscore charset used
// for cache lookups. Sport keys reach the cache from user-controlled request
// parameters, so anything outside the charset becomes an underscore.
func SanitizeKey(sportKey string) string {
	lowered := strings.ToLower(sportKey)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
