package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"menu360/internal/core/domain"
	"menu360/internal/ports/outbound"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	records   []domain.Record
	fetchedAt time.Time
	stale     bool
	version   uint64
}

// MemoryCache is the process-wide query cache. Every write goes through one
// mutex, so patches apply in the order they are invoked.
type MemoryCache struct {
	mu        sync.RWMutex
	store     map[domain.QueryKey]*entry
	versions  map[domain.QueryKey]uint64
	staleTime time.Duration
	now       func() time.Time

	group singleflight.Group
	stats *Stats
}

// NewMemoryCache creates a cache. A staleTime <= 0 means entries never age out
// and only Invalidate forces a refetch.
func NewMemoryCache(staleTime time.Duration) *MemoryCache {
	return &MemoryCache{
		store:     make(map[domain.QueryKey]*entry),
		versions:  make(map[domain.QueryKey]uint64),
		staleTime: staleTime,
		now:       time.Now,
		stats:     NewStats(),
	}
}

func (c *MemoryCache) Get(_ context.Context, key domain.QueryKey) ([]domain.Record, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if ok {
		c.stats.IncHit()
		return e.records, true
	}

	c.stats.IncMiss()
	return nil, false
}

func (c *MemoryCache) Set(_ context.Context, key domain.QueryKey, records []domain.Record) {
	c.mu.Lock()
	c.install(key, records, true)
	c.mu.Unlock()
}

func (c *MemoryCache) PatchInsert(_ context.Context, key domain.QueryKey, rec domain.Record) {
	c.patch(key, func(list []domain.Record) ([]domain.Record, bool) {
		return domain.InsertRecord(list, rec)
	})
}

func (c *MemoryCache) PatchUpdate(_ context.Context, key domain.QueryKey, rec domain.Record) {
	c.patch(key, func(list []domain.Record) ([]domain.Record, bool) {
		return domain.ReplaceRecord(list, rec)
	})
}

func (c *MemoryCache) PatchDelete(_ context.Context, key domain.QueryKey, id string) {
	c.patch(key, func(list []domain.Record) ([]domain.Record, bool) {
		return domain.RemoveRecord(list, id)
	})
}

// patch is a no-op for keys that were never populated.
func (c *MemoryCache) patch(key domain.QueryKey, fn func([]domain.Record) ([]domain.Record, bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store[key]
	if !ok {
		return
	}
	next, changed := fn(e.records)
	if !changed {
		return
	}
	e.records = next
	c.bump(key, e)
}

// Invalidate keeps the value so readers never see an empty flash.
func (c *MemoryCache) Invalidate(_ context.Context, key domain.QueryKey) {
	c.mu.Lock()
	if e, ok := c.store[key]; ok {
		e.stale = true
	}
	c.mu.Unlock()
}

func (c *MemoryCache) Clear(_ context.Context) {
	c.mu.Lock()
	for key := range c.store {
		c.versions[key]++
	}
	c.store = make(map[domain.QueryKey]*entry)
	c.mu.Unlock()
}

// Fetch returns the cached list while it is fresh, otherwise loads it.
// Concurrent loads of one key share a single loader call.
func (c *MemoryCache) Fetch(ctx context.Context, key domain.QueryKey, load outbound.Loader) ([]domain.Record, error) {
	c.mu.RLock()
	e, ok := c.store[key]
	fresh := ok && !c.isStale(e)
	var cached []domain.Record
	if ok {
		cached = e.records
	}
	c.mu.RUnlock()

	if fresh {
		c.stats.IncHit()
		return cached, nil
	}
	c.stats.IncMiss()

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		records, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, records)
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Record), nil
}

// Apply runs fn under the write lock against a copy of the cache and installs
// every key whose list changed. It returns the changed keys.
func (c *MemoryCache) Apply(_ context.Context, fn func(domain.Snapshot) domain.Snapshot) []domain.QueryKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.snapshotLocked()
	after := fn(before.Clone())

	var changed []domain.QueryKey
	for key, list := range after {
		old, had := before[key]
		if had && sameList(old, list) {
			continue
		}
		if !had {
			c.install(key, list, true)
		} else {
			e := c.store[key]
			e.records = list
			c.bump(key, e)
		}
		changed = append(changed, key)
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			delete(c.store, key)
			c.versions[key]++
			changed = append(changed, key)
		}
	}
	return changed
}

func (c *MemoryCache) Snapshot(_ context.Context) domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// StaleKeys lists populated keys due for a refetch, sorted for stable output.
func (c *MemoryCache) StaleKeys(_ context.Context) []domain.QueryKey {
	c.mu.RLock()
	var out []domain.QueryKey
	for key, e := range c.store {
		if c.isStale(e) {
			out = append(out, key)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (c *MemoryCache) Version(_ context.Context, key domain.QueryKey) uint64 {
	c.mu.RLock()
	v := c.versions[key]
	c.mu.RUnlock()
	return v
}

func (c *MemoryCache) Len(_ context.Context) int {
	c.mu.RLock()
	n := len(c.store)
	c.mu.RUnlock()
	return n
}

func (c *MemoryCache) Entries() int { return c.Len(context.Background()) }

func (c *MemoryCache) Stats() (hits uint64, misses uint64) {
	return c.stats.Snapshot()
}

func (c *MemoryCache) install(key domain.QueryKey, records []domain.Record, fresh bool) {
	if records == nil {
		records = []domain.Record{}
	}
	e, ok := c.store[key]
	if !ok {
		e = &entry{}
		c.store[key] = e
	}
	e.records = records
	if fresh {
		e.fetchedAt = c.now()
		e.stale = false
	}
	c.bump(key, e)
}

func (c *MemoryCache) bump(key domain.QueryKey, e *entry) {
	c.versions[key]++
	e.version = c.versions[key]
}

func (c *MemoryCache) isStale(e *entry) bool {
	if e.stale {
		return true
	}
	return c.staleTime > 0 && c.now().Sub(e.fetchedAt) >= c.staleTime
}

func (c *MemoryCache) snapshotLocked() domain.Snapshot {
	out := make(domain.Snapshot, len(c.store))
	for key, e := range c.store {
		out[key] = e.records
	}
	return out
}

// sameList compares by identity of the backing array; reducers return the
// input slice untouched when nothing changed.
func sameList(a, b []domain.Record) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}

var _ outbound.QueryCache = (*MemoryCache)(nil)
