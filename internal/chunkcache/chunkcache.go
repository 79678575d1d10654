// Package chunkcache memoizes rendered chunks: bounded LRU with TTL,
// single-flight computation, and tag-based group invalidation.
package chunkcache

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/auralis-audio/auralis/internal/errors"
	"github.com/auralis-audio/auralis/internal/logging"
	"github.com/auralis-audio/auralis/internal/observability/metrics"
)

// Config bounds the cache. Both limits are enforced together; eviction is
// strictly LRU. TTL 0 disables expiry.
type Config struct {
	MaxSizeBytes int64
	MaxEntries   int
	TTL          time.Duration
}

// entry is one cached rendered chunk plus its bookkeeping metadata.
type entry struct {
	key      string
	group    string
	samples  []float64
	size     int64
	hits     uint64
	lastUsed time.Time
	stored   time.Time
	element  *list.Element
}

// EntryInfo is the externally visible metadata of a cache entry.
type EntryInfo struct {
	Key        string
	Group      string
	SizeBytes  int64
	Hits       uint64
	LastAccess time.Time
}

// Cache is safe for concurrent use. At most one computation runs per key at
// any time; concurrent requesters for the same key wait on the in-flight
// result.
type Cache struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // front = most recent
	byGroup map[string]map[string]*entry
	size    int64

	flight  singleflight.Group
	metrics *metrics.CacheMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a cache. m may be nil.
func New(cfg Config, m *metrics.CacheMetrics) (*Cache, error) {
	if cfg.MaxSizeBytes <= 0 || cfg.MaxEntries <= 0 {
		return nil, errors.Newf("cache bounds must be positive: size=%d entries=%d",
			cfg.MaxSizeBytes, cfg.MaxEntries).
			Component("chunkcache").
			Category(errors.CategoryValidation).
			Build()
	}
	return &Cache{
		cfg:     cfg,
		entries: make(map[string]*entry),
		lru:     list.New(),
		byGroup: make(map[string]map[string]*entry),
		metrics: m,
		logger:  logging.ForService("chunkcache"),
		now:     time.Now,
	}, nil
}

// GetOrCompute returns the cached samples for key, or runs compute exactly
// once per key across concurrent callers and caches the result under group.
// The returned slice is a shared read-only view; callers must copy before
// mutating.
func (c *Cache) GetOrCompute(key, group string, compute func() ([]float64, error)) ([]float64, error) {
	if samples, ok := c.get(key); ok {
		c.hit()
		return samples, nil
	}
	c.miss()

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// Double-check under the flight: a concurrent caller may have
		// stored the value while this one queued.
		if samples, ok := c.get(key); ok {
			return samples, nil
		}
		samples, err := compute()
		if err != nil {
			return nil, err
		}
		c.put(key, group, samples)
		return samples, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float64), nil
}

// get returns the entry's samples when present and fresh, updating LRU
// order and hit metadata.
func (c *Cache) get(key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.cfg.TTL > 0 && c.now().Sub(e.stored) > c.cfg.TTL {
		c.removeLocked(e, "ttl")
		return nil, false
	}
	e.hits++
	e.lastUsed = c.now()
	c.lru.MoveToFront(e.element)
	return e.samples, true
}

// put clones the samples into the cache and evicts until both bounds hold.
// A value larger than the whole cache is simply not retained.
func (c *Cache) put(key, group string, samples []float64) {
	size := int64(len(samples) * 8)
	if size > c.cfg.MaxSizeBytes {
		return
	}

	clone := make([]float64, len(samples))
	copy(clone, samples)

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(old, "replace")
	}

	e := &entry{
		key:      key,
		group:    group,
		samples:  clone,
		size:     size,
		lastUsed: c.now(),
		stored:   c.now(),
	}
	e.element = c.lru.PushFront(e)
	c.entries[key] = e
	if c.byGroup[group] == nil {
		c.byGroup[group] = make(map[string]*entry)
	}
	c.byGroup[group][key] = e
	c.size += size

	for (c.size > c.cfg.MaxSizeBytes || len(c.entries) > c.cfg.MaxEntries) && c.lru.Len() > 0 {
		oldest := c.lru.Back().Value.(*entry)
		c.removeLocked(oldest, "lru")
	}
	c.updateGauges()
}

// removeLocked unlinks an entry; the caller holds c.mu.
func (c *Cache) removeLocked(e *entry, reason string) {
	delete(c.entries, e.key)
	if g := c.byGroup[e.group]; g != nil {
		delete(g, e.key)
		if len(g) == 0 {
			delete(c.byGroup, e.group)
		}
	}
	c.lru.Remove(e.element)
	c.size -= e.size
	if c.metrics != nil {
		c.metrics.Evictions.WithLabelValues("chunk", reason).Inc()
	}
	c.updateGauges()
}

// Invalidate removes one key. Returns whether it was present.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok {
		c.removeLocked(e, "invalidation")
	}
	return ok
}

// InvalidateGroup removes every entry tagged with the group and returns how
// many were dropped. Entries in other groups are untouched.
func (c *Cache) InvalidateGroup(group string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	members := c.byGroup[group]
	n := len(members)
	for _, e := range members {
		c.removeLocked(e, "invalidation")
	}
	return n
}

// Flush drops everything. Escape hatch for maintenance operations; targeted
// invalidation is the normal path.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		c.removeLocked(e, "flush")
	}
}

// Stats returns current size, entry count, and per-entry metadata.
func (c *Cache) Stats() (sizeBytes int64, infos []EntryInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	infos = make([]EntryInfo, 0, len(c.entries))
	for _, e := range c.entries {
		infos = append(infos, EntryInfo{
			Key:        e.key,
			Group:      e.group,
			SizeBytes:  e.size,
			Hits:       e.hits,
			LastAccess: e.lastUsed,
		})
	}
	return c.size, infos
}

func (c *Cache) hit() {
	if c.metrics != nil {
		c.metrics.Hits.WithLabelValues("chunk").Inc()
	}
}

func (c *Cache) miss() {
	if c.metrics != nil {
		c.metrics.Misses.WithLabelValues("chunk").Inc()
	}
}

func (c *Cache) updateGauges() {
	if c.metrics != nil {
		c.metrics.SizeBytes.Set(float64(c.size))
		c.metrics.Entries.Set(float64(len(c.entries)))
	}
}
