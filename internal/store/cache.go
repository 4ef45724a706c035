package store

import "sync"

// cacheEntry mirrors the shape of the teacher's engine.TTEntry
// (internal/engine/transposition.go): a compact, fixed record plus just
// enough bookkeeping to drive a replacement policy.
type cacheEntry struct {
	record Record
	valid  bool
}

// CachingStore wraps another Store with a bounded read-through cache of
// resolved (fingerprint -> Record) lookups, grounded on the teacher's
// internal/tablebase.CachedProber (a map guarded by a mutex, evicted by
// clearing half the table when full) crossed with
// internal/engine.TranspositionTable's replacement rule: here, unsolved
// records are evicted before solved ones (solved records go only when
// too few unsolved ones remain to free half the cache), since the
// retrograde fixpoint re-reads the same child fingerprints across many
// passes and an evicted solved score is the single most expensive miss
// to re-pay.
type CachingStore struct {
	inner Store

	mu      sync.RWMutex
	entries map[uint64]cacheEntry
	maxSize int

	hits   uint64
	misses uint64
}

// NewCachingStore wraps inner with a read-through cache capped at
// maxSize entries.
func NewCachingStore(inner Store, maxSize int) *CachingStore {
	return &CachingStore{
		inner:   inner,
		entries: make(map[uint64]cacheEntry, maxSize),
		maxSize: maxSize,
	}
}

func (c *CachingStore) Get(fp uint64) (Record, error) {
	c.mu.RLock()
	if e, ok := c.entries[fp]; ok {
		c.mu.RUnlock()
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return e.record, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()

	r, err := c.inner.Get(fp)
	if err != nil {
		return r, err
	}
	c.put(fp, r)
	return r, nil
}

func (c *CachingStore) put(fp uint64, r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.evictHalfUnsolvedFirst()
	}
	c.entries[fp] = cacheEntry{record: r, valid: true}
}

// evictHalfUnsolvedFirst clears roughly half the cache, preferring to
// evict unsolved (pending) records before solved ones — a solved score
// is strictly more valuable to keep warm during the retrograde fixpoint
// than an unsolved placeholder. Caller holds c.mu.
func (c *CachingStore) evictHalfUnsolvedFirst() {
	target := len(c.entries) / 2
	if target == 0 {
		target = 1
	}
	evicted := 0
	for fp, e := range c.entries {
		if evicted >= target {
			break
		}
		if !e.record.Solved {
			delete(c.entries, fp)
			evicted++
		}
	}
	if evicted < target {
		for fp := range c.entries {
			if evicted >= target {
				break
			}
			delete(c.entries, fp)
			evicted++
		}
	}
}

// invalidate drops a cached entry; called after a mutation that could
// make a cached copy stale.
func (c *CachingStore) invalidate(fp uint64) {
	c.mu.Lock()
	delete(c.entries, fp)
	c.mu.Unlock()
}

func (c *CachingStore) HitRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total) * 100
}

func (c *CachingStore) InsertBatch(records []Record) (int, error) {
	return c.inner.InsertBatch(records)
}

func (c *CachingStore) Exists(fp uint64) (bool, error) {
	return c.inner.Exists(fp)
}

func (c *CachingStore) ScanByDepth(depth uint16, offset, limit int) ([]Record, error) {
	return c.inner.ScanByDepth(depth, offset, limit)
}

func (c *CachingStore) ScanUnsolvedByLevel(level uint16, offset, limit int) ([]Record, error) {
	return c.inner.ScanUnsolvedByLevel(level, offset, limit)
}

func (c *CachingStore) CountByDepth(depth uint16) (int, error) {
	return c.inner.CountByDepth(depth)
}

func (c *CachingStore) CountUnsolvedByLevel(level uint16) (int, error) {
	return c.inner.CountUnsolvedByLevel(level)
}

func (c *CachingStore) UpdateScore(fp uint64, score, bestMove int8) error {
	if err := c.inner.UpdateScore(fp, score, bestMove); err != nil {
		return err
	}
	c.invalidate(fp)
	return nil
}

func (c *CachingStore) Flush() error { return c.inner.Flush() }
func (c *CachingStore) Close() error { return c.inner.Close() }

var _ Store = (*CachingStore)(nil)
var _ Store = (*MemStore)(nil)
var _ Store = (*BadgerStore)(nil)
