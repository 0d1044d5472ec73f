package vfs

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/tonimelisma/drivevfs/internal/driveapi"
)

// File is a cached metadata record.
type File struct {
	driveapi.Item
	CachedAt time.Time
}

type lookup int

const (
	cacheHit lookup = iota
	cacheMiss
	cacheExpired
)

// metaCache maps object IDs to metadata records with a fixed lifetime. A
// record is live while no more than lifetime has passed since CachedAt.
type metaCache struct {
	entries  *xsync.Map[string, File]
	lifetime time.Duration
	now      func() time.Time
}

func newMetaCache(lifetime time.Duration, now func() time.Time) *metaCache {
	return &metaCache{
		entries:  xsync.NewMap[string, File](),
		lifetime: lifetime,
		now:      now,
	}
}

// get returns a live record. Stale records are deleted on the way out.
func (c *metaCache) get(id string) (File, lookup) {
	f, ok := c.entries.Load(id)
	if !ok {
		return File{}, cacheMiss
	}

	if c.now().Sub(f.CachedAt) >= c.lifetime {
		c.entries.Delete(id)

		return File{}, cacheExpired
	}

	return f, cacheHit
}

func (c *metaCache) put(item driveapi.Item) File {
	f := File{Item: item, CachedAt: c.now()}
	c.entries.Store(item.ID, f)

	return f
}

func (c *metaCache) evict(id string) {
	c.entries.Delete(id)
}

func (c *metaCache) reset() {
	c.entries.Clear()
}

func (c *metaCache) size() int {
	return c.entries.Size()
}

// PathStore memoizes path -> object ID mappings. Entries never expire; only
// Reset clears them, after which "/" maps to the root again.
type PathStore interface {
	Lookup(path string) (string, bool)
	Store(path, id string)
	Reset()
}

// MemoryPaths is the default in-process PathStore.
type MemoryPaths struct {
	m *xsync.Map[string, string]
}

// NewMemoryPaths returns a PathStore seeded with "/" -> RootID.
func NewMemoryPaths() *MemoryPaths {
	p := &MemoryPaths{m: xsync.NewMap[string, string]()}
	p.m.Store("/", RootID)

	return p
}

// Lookup returns the ID memoized for path.
func (p *MemoryPaths) Lookup(path string) (string, bool) {
	return p.m.Load(path)
}

// Store memoizes path -> id, replacing any earlier mapping.
func (p *MemoryPaths) Store(path, id string) {
	p.m.Store(path, id)
}

// Reset drops every mapping and reseeds the root.
func (p *MemoryPaths) Reset() {
	p.m.Clear()
	p.m.Store("/", RootID)
}

// Len reports the number of memoized paths, root included.
func (p *MemoryPaths) Len() int {
	return p.m.Size()
}
