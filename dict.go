package rafs

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ChunkDict is the digest -> ChunkDescriptor index used for deduplication
// across a build (spec section 4.C). The active/working dictionary is an
// unbounded map, per the spec invariant that a build must be able to dedup
// against every chunk seen so far; Add and Lookup are the hot path
// (called once per chunk produced by the Chunker) and are safe for
// concurrent use.
type ChunkDict struct {
	mu      sync.RWMutex
	entries map[Digest]ChunkDescriptor
}

// NewChunkDict returns an empty dictionary.
func NewChunkDict() *ChunkDict {
	return &ChunkDict{entries: make(map[Digest]ChunkDescriptor)}
}

// Lookup returns the descriptor for digest and true on a hit.
func (d *ChunkDict) Lookup(digest Digest) (ChunkDescriptor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cd, ok := d.entries[digest]
	return cd, ok
}

// Add inserts or overwrites the descriptor for its digest. Called both
// when loading an existing bootstrap (4.F Bootstrap adapter) and after a
// dictionary miss is resolved by the blob manager (4.C "an entry is
// inserted so subsequent identical chunks in the same build also hit").
func (d *ChunkDict) Add(cd ChunkDescriptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[cd.Digest] = cd
}

// Len returns the number of distinct digests tracked.
func (d *ChunkDict) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// LookupOrStore implements the dictionary's role in the dataflow: on a
// hit, the existing descriptor is reused verbatim (no new blob bytes);
// on a miss, store is invoked to persist the chunk via the blob manager
// and the result is both returned and recorded for future hits.
func (d *ChunkDict) LookupOrStore(raw RawChunk, store func(RawChunk) (*ChunkDescriptor, error)) (*ChunkDescriptor, bool, error) {
	if cd, ok := d.Lookup(raw.Digest); ok {
		return &cd, true, nil
	}
	cd, err := store(raw)
	if err != nil {
		return nil, false, err
	}
	d.Add(*cd)
	return cd, false, nil
}

// ParentDictCache bounds the number of additional chunk dictionaries kept
// resident when a multi-parent diff build (4.F Diff adapter) references
// more lower layers than fit comfortably in memory at once. The active
// build dictionary (ChunkDict above) is never bounded; this cache only
// holds extra, already-merged-in parent dictionaries that a subsequent
// pass might want to re-consult without re-parsing their bootstraps.
type ParentDictCache struct {
	cache *lru.Cache[string, *ChunkDict]
}

// NewParentDictCache creates a cache holding up to size parent
// dictionaries, keyed by bootstrap path or blob ID.
func NewParentDictCache(size int) (*ParentDictCache, error) {
	c, err := lru.New[string, *ChunkDict](size)
	if err != nil {
		return nil, NewError(KindConfigure, "", err)
	}
	return &ParentDictCache{cache: c}, nil
}

// Get returns the cached dictionary for key, if still resident.
func (p *ParentDictCache) Get(key string) (*ChunkDict, bool) {
	return p.cache.Get(key)
}

// Put stores dict under key, evicting the least recently used entry if
// the cache is full.
func (p *ParentDictCache) Put(key string, dict *ChunkDict) {
	p.cache.Add(key, dict)
}
