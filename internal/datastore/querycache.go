package datastore

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/auralis-audio/auralis/internal/chunkcache"
	"github.com/auralis-audio/auralis/internal/observability/metrics"
)

// Logical cache groups. Mutations invalidate by group, never by scanning
// keys; full flush is the maintenance escape hatch.
const (
	GroupListings  = "listings"
	GroupSearch    = "search"
	GroupFavorites = "favorites"
	GroupRecent    = "recent"
	GroupPopular   = "popular"
)

// TrackGroup is the per-track logical group name. It is shared with the
// rendered-chunk cache so SaveFingerprint's invalidation reaches the chunks
// rendered under the old fingerprint.
func TrackGroup(id int64) string {
	return chunkcache.TrackGroup(id)
}

// queryCache is a TTL cache of read results tagged with logical groups.
// go-cache handles storage and expiry; the tag index maps each group to its
// live keys so invalidation wipes exactly one logical set.
type queryCache struct {
	store *gocache.Cache

	mu     sync.Mutex
	byTag  map[string]map[string]struct{}
	tagsOf map[string][]string

	metrics *metrics.CacheMetrics
}

func newQueryCache(ttl time.Duration, m *metrics.CacheMetrics) *queryCache {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &queryCache{
		store:   gocache.New(ttl, 10*time.Minute),
		byTag:   make(map[string]map[string]struct{}),
		tagsOf:  make(map[string][]string),
		metrics: m,
	}
}

// get returns a cached value.
func (qc *queryCache) get(key string) (any, bool) {
	v, ok := qc.store.Get(key)
	if qc.metrics != nil {
		if ok {
			qc.metrics.Hits.WithLabelValues("query").Inc()
		} else {
			qc.metrics.Misses.WithLabelValues("query").Inc()
		}
	}
	return v, ok
}

// put stores a value under the given logical groups.
func (qc *queryCache) put(key string, value any, tags ...string) {
	qc.store.SetDefault(key, value)

	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.tagsOf[key] = tags
	for _, tag := range tags {
		if qc.byTag[tag] == nil {
			qc.byTag[tag] = make(map[string]struct{})
		}
		qc.byTag[tag][key] = struct{}{}
	}
}

// invalidate wipes every key tagged with any of the groups.
func (qc *queryCache) invalidate(tags ...string) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	for _, tag := range tags {
		for key := range qc.byTag[tag] {
			qc.store.Delete(key)
			qc.dropKeyLocked(key)
			if qc.metrics != nil {
				qc.metrics.Evictions.WithLabelValues("query", "invalidation").Inc()
			}
		}
		delete(qc.byTag, tag)
	}
}

// dropKeyLocked unlinks a key from every tag it carries.
func (qc *queryCache) dropKeyLocked(key string) {
	for _, tag := range qc.tagsOf[key] {
		if members := qc.byTag[tag]; members != nil {
			delete(members, key)
			if len(members) == 0 {
				delete(qc.byTag, tag)
			}
		}
	}
	delete(qc.tagsOf, key)
}

// flush drops everything.
func (qc *queryCache) flush() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.store.Flush()
	qc.byTag = make(map[string]map[string]struct{})
	qc.tagsOf = make(map[string][]string)
	if qc.metrics != nil {
		qc.metrics.Evictions.WithLabelValues("query", "flush").Inc()
	}
}

// warm reports whether a key is currently cached, for tests and
// diagnostics.
func (qc *queryCache) warm(key string) bool {
	_, ok := qc.store.Get(key)
	return ok
}
