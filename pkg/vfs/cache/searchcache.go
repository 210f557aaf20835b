package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/driftfs/driftfs/pkg/vfs"
)

// DefaultSearchTTL is how long a search result page stays valid.
const DefaultSearchTTL = 300 * time.Second

// SearchKey identifies one cached search result page.
type SearchKey struct {
	Query     string
	Scope     vfs.SearchScope
	Target    string
	Principal string
}

// NewSearchKey normalizes the query (lower-cased, trimmed) and builds the key.
func NewSearchKey(query string, scope vfs.SearchScope, target, principal string) SearchKey {
	return SearchKey{
		Query:     strings.ToLower(strings.TrimSpace(query)),
		Scope:     scope,
		Target:    target,
		Principal: principal,
	}
}

type searchEntry struct {
	hits       []vfs.SearchHit
	insertedAt time.Time
	ttl        time.Duration
}

// SearchCache caches complete raw search result sets before pagination.
// Empty result sets are never cached so a just-uploaded file becomes
// searchable without waiting for expiry.
type SearchCache struct {
	mu      sync.RWMutex
	entries map[SearchKey]searchEntry
	ttl     time.Duration
	metrics Metrics
	now     func() time.Time
}

// NewSearchCache creates a search cache with the given TTL
// (DefaultSearchTTL when ttl <= 0).
func NewSearchCache(ttl time.Duration, m Metrics) *SearchCache {
	if ttl <= 0 {
		ttl = DefaultSearchTTL
	}
	return &SearchCache{
		entries: make(map[SearchKey]searchEntry),
		ttl:     ttl,
		metrics: m,
		now:     time.Now,
	}
}

// Get returns the cached hits for key, treating expired entries as absent.
func (c *SearchCache) Get(key SearchKey) ([]vfs.SearchHit, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.insertedAt) < entry.ttl {
		if c.metrics != nil {
			c.metrics.RecordHit("search")
		}
		return entry.hits, true
	}

	if ok {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && c.now().Sub(cur.insertedAt) >= cur.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}

	if c.metrics != nil {
		c.metrics.RecordMiss("search")
	}
	return nil, false
}

// Set stores a result set. Empty sets are bypassed.
func (c *SearchCache) Set(key SearchKey, hits []vfs.SearchHit) {
	if len(hits) == 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = searchEntry{hits: hits, insertedAt: c.now(), ttl: c.ttl}
	c.mu.Unlock()
}

// Lookup is Get with the key built in place. It exists so callers outside
// this package can consume the cache through an interface typed entirely on
// engine types.
func (c *SearchCache) Lookup(query string, scope vfs.SearchScope, target, principal string) ([]vfs.SearchHit, bool) {
	return c.Get(NewSearchKey(query, scope, target, principal))
}

// Store is Set with the key built in place.
func (c *SearchCache) Store(query string, scope vfs.SearchScope, target, principal string, hits []vfs.SearchHit) {
	c.Set(NewSearchKey(query, scope, target, principal), hits)
}

// InvalidateMount drops every cached page that contains a hit from the given
// mount. Called after mutations so searches do not serve deleted files.
func (c *SearchCache) InvalidateMount(mountID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		for _, hit := range entry.hits {
			if hit.MountID == mountID {
				delete(c.entries, key)
				removed++
				break
			}
		}
	}
	if c.metrics != nil && removed > 0 {
		c.metrics.RecordInvalidation("search", removed)
	}
	return removed
}

// SetClock replaces the time source. Tests only.
func (c *SearchCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
