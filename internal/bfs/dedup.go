package bfs

import "sync"

// dedupSet is the worker-side auxiliary fingerprint cache of spec.md
// §4.2: a bounded, mutex-guarded set, one per depth and shared by all
// workers of that depth, used to skip children already produced earlier
// in the same depth, avoiding a store round trip for the common case. A
// fresh set is made for each depth. Capacity 0 disables it entirely
// (store-side dedup mode).
type dedupSet struct {
	mu   sync.Mutex
	seen map[uint64]struct{}
	max  int
}

func newDedupSet(max int) *dedupSet {
	if max <= 0 {
		return nil
	}
	return &dedupSet{seen: make(map[uint64]struct{}, min(max, 1<<16)), max: max}
}

// observe records fp and reports whether it was already present. Once
// the set reaches capacity it stops recording new fingerprints (so it
// never grows unbounded) but keeps reporting against what it already
// has; any duplicate it misses past that point is still caught by the
// store's own fingerprint-uniqueness check on insert.
func (d *dedupSet) observe(fp uint64) (alreadySeen bool) {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[fp]; ok {
		return true
	}
	if len(d.seen) < d.max {
		d.seen[fp] = struct{}{}
	}
	return false
}
