// Package intern implements the bounded string interner spec §4.3
// describes: short and very long strings pass through untouched,
// everything else is deduplicated under an LRU eviction policy capped
// by both entry count and byte budget.
//
// No example repo in the retrieval pack ships a generic LRU cache
// (checked for golang-lru — absent), so this is built on
// container/list + sync.RWMutex, the same pairing the teacher uses for
// its own bounded caches (runtime/executor/shell_worker.go guards a
// map with sync.Mutex; this just adds LRU ordering on top).
package intern

import (
	"container/list"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	// MinInternLen is the longest string length that is never
	// interned; strings of this length or shorter are returned as-is
	// (spec §4.3).
	MinInternLen = 8
	// MaxInternLen is the longest string length eligible for
	// interning; anything longer is returned as-is.
	MaxInternLen = 1024 * 1024

	// entryOverhead approximates the fixed per-entry bookkeeping cost
	// (map bucket, list element, length field) on top of the key bytes
	// themselves, for the purposes of the memory budget.
	entryOverhead = 48

	// softWatermark is the fraction of capacity eviction stops at,
	// per spec §4.3 ("soft watermark, default 80% of max").
	softWatermark = 0.8
)

type entry struct {
	key  string
	elem *list.Element
}

// Interner deduplicates repeated text fragments. It owns its storage:
// callers always receive an independent copy of the canonical string,
// never a reference that could outlive an evicted entry — Design
// Notes §9 explicitly rules out sharing references back into the
// table to avoid lifetime entanglement with eviction.
type Interner struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	order       *list.List // front = most recently used
	maxEntries  int
	maxBytes    int64
	bytesUsed   int64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns an Interner capped at maxEntries entries and maxBytes of
// accounted memory. Defaults from spec §3: ~10,000 entries, ~50 MiB.
func New(maxEntries int, maxBytes int64) *Interner {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	if maxBytes <= 0 {
		maxBytes = 50 * 1024 * 1024
	}
	return &Interner{
		entries:    make(map[string]*entry, maxEntries),
		order:      list.New(),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
	}
}

// Intern returns the canonical copy of s, deduplicating against
// previously interned strings when s is eligible (longer than
// MinInternLen and no longer than MaxInternLen).
func (in *Interner) Intern(s string) string {
	if len(s) <= MinInternLen || len(s) > MaxInternLen {
		return s
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if e, ok := in.entries[s]; ok {
		in.order.MoveToFront(e.elem)
		in.hits.Add(1)
		return e.key
	}

	in.misses.Add(1)
	cost := int64(len(s) + entryOverhead)
	if len(in.entries)+1 > in.maxEntries || in.bytesUsed+cost > in.maxBytes {
		in.evictToWatermark()
	}

	key := strings.Clone(s)
	e := &entry{key: key}
	e.elem = in.order.PushFront(key)
	in.entries[key] = e
	in.bytesUsed += cost
	return key
}

// evictToWatermark removes least-recently-used entries until both the
// entry count and byte usage are at or under the soft watermark.
// Callers must hold in.mu for writing.
func (in *Interner) evictToWatermark() {
	entryTarget := int(float64(in.maxEntries) * softWatermark)
	byteTarget := int64(float64(in.maxBytes) * softWatermark)

	for (len(in.entries) > entryTarget || in.bytesUsed > byteTarget) && in.order.Len() > 0 {
		back := in.order.Back()
		key := back.Value.(string)
		in.order.Remove(back)
		if e, ok := in.entries[key]; ok {
			in.bytesUsed -= int64(len(e.key) + entryOverhead)
			delete(in.entries, key)
		}
	}
}

// Stats is a point-in-time snapshot of interner activity.
type Stats struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	LiveEntries int
	BytesUsed   int64
}

// Stats returns a consistent snapshot: readers concurrent with an
// eviction see either the pre- or post-eviction state, never a partial
// one, because the count/byte fields are read under the same lock
// eviction mutates them under.
func (in *Interner) Stats() Stats {
	in.mu.RLock()
	defer in.mu.RUnlock()

	hits := in.hits.Load()
	misses := in.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:        hits,
		Misses:      misses,
		HitRate:     rate,
		LiveEntries: len(in.entries),
		BytesUsed:   in.bytesUsed,
	}
}
