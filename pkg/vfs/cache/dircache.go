// Package cache provides the process-local TTL caches of the filesystem
// engine: the per-mount directory listing cache and the search result cache.
//
// Both caches are safe for concurrent use and never return errors: on any
// internal miss the caller degrades to a direct provider call. Coherency
// across processes relies on short TTLs, not invalidation messages.
package cache

import (
	"sync"
	"time"

	"github.com/driftfs/driftfs/pkg/vfs"
)

// Metrics receives cache effectiveness events. A nil Metrics is valid and
// results in zero overhead.
type Metrics interface {
	RecordHit(cache string)
	RecordMiss(cache string)
	RecordInvalidation(cache string, removed int)
}

type dirEntry struct {
	listing    *vfs.DirectoryListing
	insertedAt time.Time
	ttl        time.Duration
}

// DirectoryCache caches directory listings keyed by (mountID, subPath).
//
// Entries expire lazily on Get; mutations remove the containing directory and
// its whole ancestor chain so a subsequent read never observes a stale parent.
type DirectoryCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]dirEntry // mountID -> subPath -> entry
	metrics Metrics

	// now is replaceable in tests.
	now func() time.Time
}

// NewDirectoryCache creates an empty directory cache.
func NewDirectoryCache(m Metrics) *DirectoryCache {
	return &DirectoryCache{
		entries: make(map[string]map[string]dirEntry),
		metrics: m,
		now:     time.Now,
	}
}

// Get returns the cached listing for (mountID, subPath), treating expired
// entries as absent and removing them.
func (c *DirectoryCache) Get(mountID, subPath string) (*vfs.DirectoryListing, bool) {
	c.mu.RLock()
	entry, ok := c.entries[mountID][subPath]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.insertedAt) < entry.ttl {
		if c.metrics != nil {
			c.metrics.RecordHit("directory")
		}
		return entry.listing, true
	}

	if ok {
		// Expired: drop lazily. Re-check under the write lock since a
		// concurrent Set may have refreshed the entry.
		c.mu.Lock()
		if cur, still := c.entries[mountID][subPath]; still && c.now().Sub(cur.insertedAt) >= cur.ttl {
			delete(c.entries[mountID], subPath)
		}
		c.mu.Unlock()
	}

	if c.metrics != nil {
		c.metrics.RecordMiss("directory")
	}
	return nil, false
}

// Set stores a listing with the given TTL. Non-positive TTLs are ignored.
func (c *DirectoryCache) Set(mountID, subPath string, listing *vfs.DirectoryListing, ttl time.Duration) {
	if ttl <= 0 || listing == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	byPath, ok := c.entries[mountID]
	if !ok {
		byPath = make(map[string]dirEntry)
		c.entries[mountID] = byPath
	}
	byPath[subPath] = dirEntry{listing: listing, insertedAt: c.now(), ttl: ttl}
}

// Invalidate removes a single entry and reports whether it was present.
func (c *DirectoryCache) Invalidate(mountID, subPath string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[mountID][subPath]; !ok {
		return false
	}
	delete(c.entries[mountID], subPath)
	if c.metrics != nil {
		c.metrics.RecordInvalidation("directory", 1)
	}
	return true
}

// InvalidatePathAndAncestors removes the entry for subPath and every ancestor
// directory up to and including the mount root. Returns the number of entries
// removed. Every successful mutation must call this on the containing
// directory before returning to the caller.
func (c *DirectoryCache) InvalidatePathAndAncestors(mountID, subPath string) int {
	dir := subPath
	if !vfs.IsDirectoryPath(dir) {
		dir = vfs.ParentPath(dir)
	}

	removed := 0
	c.mu.Lock()
	for {
		if _, ok := c.entries[mountID][dir]; ok {
			delete(c.entries[mountID], dir)
			removed++
		}
		if dir == "/" {
			break
		}
		dir = vfs.ParentPath(dir)
	}
	c.mu.Unlock()

	if c.metrics != nil && removed > 0 {
		c.metrics.RecordInvalidation("directory", removed)
	}
	return removed
}

// PurgeMount drops every entry for a mount. Used when a mount or its storage
// configuration changes.
func (c *DirectoryCache) PurgeMount(mountID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := len(c.entries[mountID])
	delete(c.entries, mountID)
	if c.metrics != nil && removed > 0 {
		c.metrics.RecordInvalidation("directory", removed)
	}
	return removed
}

// Len returns the total number of live entries. Expired entries that have not
// been touched still count; this is a debugging aid, not an exact gauge.
func (c *DirectoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, byPath := range c.entries {
		n += len(byPath)
	}
	return n
}

// SetClock replaces the time source. Tests only.
func (c *DirectoryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
