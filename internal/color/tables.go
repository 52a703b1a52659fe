package color

import "sync"

// TableKey identifies a generated lookup table.
type TableKey struct {
	Curve Curve
	Size  int
	Max   uint16
}

// Tables is an LRU cache of generated lookup tables with a soft limit.
// Tables are immutable once generated, so a cached LUT may be shared by any
// number of planes and outputs.
//
// Tables is safe for concurrent use and must not be copied.
type Tables struct {
	mu        sync.Mutex
	entries   map[TableKey]*tableEntry
	softLimit int
	tick      int64

	hits, misses, evictions uint64
}

type tableEntry struct {
	lut   LUT
	atime int64
}

// DefaultTableLimit is the soft limit used by NewTables when given 0.
const DefaultTableLimit = 32

// NewTables creates a table cache holding about softLimit tables.
func NewTables(softLimit int) *Tables {
	if softLimit <= 0 {
		softLimit = DefaultTableLimit
	}
	return &Tables{
		entries:   make(map[TableKey]*tableEntry),
		softLimit: softLimit,
	}
}

// Get returns the table for key, generating it on a miss. Generation runs
// under the lock so concurrent callers never build the same table twice.
// Failed generations are not cached.
func (t *Tables) Get(key TableKey) (LUT, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tick++
	if e, ok := t.entries[key]; ok {
		e.atime = t.tick
		t.hits++
		return e.lut, nil
	}
	t.misses++

	lut, err := Generate(key.Curve, key.Size, key.Max)
	if err != nil {
		return LUT{}, err
	}
	t.entries[key] = &tableEntry{lut: lut, atime: t.tick}
	if len(t.entries) > t.softLimit {
		t.evictOldest()
	}
	return lut, nil
}

// Len returns the number of cached tables.
func (t *Tables) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// TableStats reports cache effectiveness.
type TableStats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Stats returns a snapshot of the cache counters.
func (t *Tables) Stats() TableStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TableStats{
		Len:       len(t.entries),
		Capacity:  t.softLimit,
		Hits:      t.hits,
		Misses:    t.misses,
		Evictions: t.evictions,
	}
}

// evictOldest trims the cache to three quarters of the soft limit, least
// recently used first. Caller must hold t.mu.
func (t *Tables) evictOldest() {
	target := max(t.softLimit*3/4, 1)
	for len(t.entries) > target {
		var (
			oldest TableKey
			atime  int64 = -1
		)
		for k, e := range t.entries {
			if atime < 0 || e.atime < atime {
				oldest, atime = k, e.atime
			}
		}
		delete(t.entries, oldest)
		t.evictions++
	}
}
