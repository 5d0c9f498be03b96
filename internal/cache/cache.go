// Package cache implements a TTL response cache for external API data.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is used when an endpoint has no entry in the TTL table.
const DefaultTTL = 2 * time.Minute

// DefaultMaxEntries bounds total cache size.
const DefaultMaxEntries = 1000

// endpointTTLs maps endpoint paths to expiry durations. Live match data goes
// stale in seconds; reference data like head-to-head history barely moves.
var endpointTTLs = map[string]time.Duration{
	"/fixtures":            60 * time.Second,
	"/fixtures/statistics": 2 * time.Minute,
	"/fixtures/lineups":    5 * time.Minute,
	"/injuries":            10 * time.Minute,
	"/fixtures/headtohead": time.Hour,
	"/standings":           time.Hour,
}

type entry struct {
	data      any
	expiresAt time.Time
}

// Cache is a thread-safe TTL cache keyed by endpoint plus normalized
// parameters. Entries are immutable once written; expired entries are
// evicted lazily on read and in bulk by Sweep.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int
	now        func() time.Time
}

// Opts holds optional Cache settings.
type Opts struct {
	MaxEntries int
}

// New creates an empty cache.
func New(opts Opts) *Cache {
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Key builds a cache key from an endpoint and its parameters. Parameters are
// serialized in sorted-key order so logically identical requests collide.
func Key(endpoint string, params map[string]string) string {
	if len(params) == 0 {
		return endpoint
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(endpoint)
	for _, k := range keys {
		b.WriteByte('?')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// TTLFor returns the expiry duration for an endpoint, falling back to
// DefaultTTL for endpoints absent from the table.
func TTLFor(endpoint string) time.Duration {
	if ttl, ok := endpointTTLs[endpoint]; ok {
		return ttl
	}
	return DefaultTTL
}

// Get returns the cached data for endpoint+params, or false if absent or
// expired. An expired entry is evicted on the spot.
func (c *Cache) Get(endpoint string, params map[string]string) (any, bool) {
	key := Key(endpoint, params)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.data, true
}

// Set stores data under endpoint+params using the endpoint's default TTL.
func (c *Cache) Set(endpoint string, params map[string]string, data any) {
	c.SetWithTTL(endpoint, params, data, TTLFor(endpoint))
}

// SetWithTTL stores data with an explicit TTL. When the cache is full, the
// entry closest to expiry is evicted to make room.
func (c *Cache) SetWithTTL(endpoint string, params map[string]string, data any, ttl time.Duration) {
	key := Key(endpoint, params)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictSoonestLocked()
	}
	c.entries[key] = entry{data: data, expiresAt: c.now().Add(ttl)}
}

// Sweep removes all expired entries and returns how many were evicted.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the current entry count, including not-yet-swept expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictSoonestLocked removes the entry with the earliest expiry.
// Caller must hold c.mu.
func (c *Cache) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	for key, e := range c.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim = key
			soonest = e.expiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}
