// Package vfs exposes a Drive account as a path-addressed filesystem.
//
// Drive addresses objects by opaque ID. FS bridges the gap with two caches:
// a path cache that memoizes every path -> ID mapping a folder listing
// reveals, and a metadata cache that holds each object's record for a fixed
// lifetime. Reads honor etag and byte-range conditions; writes accept the
// input stream before the destination is known and replay it once the
// object has been found or created.
package vfs

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/tonimelisma/drivevfs/internal/driveapi"
)

// RootID is the Drive alias of the account's root folder.
const RootID = "root"

// DefaultCacheLifetime is how long a metadata record stays live.
const DefaultCacheLifetime = 60 * time.Second

// Backend is the slice of the Drive API the filesystem needs.
// *driveapi.Client satisfies it.
type Backend interface {
	GetItem(ctx context.Context, id string) (driveapi.Item, error)
	ListChildren(ctx context.Context, id string) (*driveapi.Children, error)
	CreateItem(ctx context.Context, parentID, title, mimeType string) (driveapi.Item, error)
	OpenDownload(ctx context.Context, downloadURL, rangeHeader string) (*http.Response, error)
	Upload(ctx context.Context, id string, body io.Reader) (driveapi.Item, error)
}

// Invalidator drops a cached credential. *auth.Cache satisfies it.
type Invalidator interface {
	Invalidate()
}

// Options configures an FS.
type Options struct {
	// Credentials is reset together with the other caches. Optional.
	Credentials Invalidator

	// CacheLifetime is the metadata record lifetime. Zero means
	// DefaultCacheLifetime.
	CacheLifetime time.Duration

	// Paths stores path -> ID mappings. Nil means a fresh MemoryPaths.
	Paths PathStore

	// WriteBufferLimit caps how many bytes a write spools before the
	// destination is known. Zero means unbounded.
	WriteBufferLimit int64

	// Metrics receives cache counters. Nil means a private set.
	Metrics *metrics.Set

	Logger *slog.Logger

	// Now is the clock used to stamp and age metadata records.
	Now func() time.Time
}

// FS is the path-addressed view of one Drive account. It owns the metadata
// and path caches and is safe for concurrent use.
type FS struct {
	backend     Backend
	creds       Invalidator
	meta        *metaCache
	paths       PathStore
	bufferLimit int64
	logger      *slog.Logger
	metrics     *metrics.Set
	stats       counters
}

type counters struct {
	pathHits    *metrics.Counter
	pathMisses  *metrics.Counter
	metaHits    *metrics.Counter
	metaMisses  *metrics.Counter
	metaExpired *metrics.Counter
	listings    *metrics.Counter
	creates     *metrics.Counter
	uploads     *metrics.Counter
	downloads   *metrics.Counter
}

func newCounters(set *metrics.Set) counters {
	return counters{
		pathHits:    set.GetOrCreateCounter("drivevfs_path_cache_hits_total"),
		pathMisses:  set.GetOrCreateCounter("drivevfs_path_cache_misses_total"),
		metaHits:    set.GetOrCreateCounter(`drivevfs_metadata_cache_total{result="hit"}`),
		metaMisses:  set.GetOrCreateCounter(`drivevfs_metadata_cache_total{result="miss"}`),
		metaExpired: set.GetOrCreateCounter(`drivevfs_metadata_cache_total{result="expired"}`),
		listings:    set.GetOrCreateCounter("drivevfs_folder_listings_total"),
		creates:     set.GetOrCreateCounter("drivevfs_creates_total"),
		uploads:     set.GetOrCreateCounter("drivevfs_uploads_total"),
		downloads:   set.GetOrCreateCounter("drivevfs_downloads_total"),
	}
}

// New creates an FS over backend.
func New(backend Backend, opts Options) *FS {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.CacheLifetime <= 0 {
		opts.CacheLifetime = DefaultCacheLifetime
	}

	if opts.Paths == nil {
		opts.Paths = NewMemoryPaths()
	}

	if opts.Metrics == nil {
		opts.Metrics = metrics.NewSet()
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	f := &FS{
		backend:     backend,
		creds:       opts.Credentials,
		meta:        newMetaCache(opts.CacheLifetime, opts.Now),
		paths:       opts.Paths,
		bufferLimit: opts.WriteBufferLimit,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		stats:       newCounters(opts.Metrics),
	}

	opts.Metrics.GetOrCreateGauge("drivevfs_metadata_cache_entries", func() float64 {
		return float64(f.meta.size())
	})

	return f
}

// Metrics returns the set the filesystem's counters live in.
func (f *FS) Metrics() *metrics.Set {
	return f.metrics
}

// Reset clears the credential, metadata, and path caches together.
func (f *FS) Reset() {
	if f.creds != nil {
		f.creds.Invalidate()
	}

	f.meta.reset()
	f.paths.Reset()

	f.logger.Info("caches reset")
}

// Metadata returns the record for id, from the cache while it is live and
// from the backend otherwise. Concurrent misses each fetch.
func (f *FS) Metadata(ctx context.Context, id string) (File, error) {
	file, res := f.meta.get(id)

	switch res {
	case cacheHit:
		f.stats.metaHits.Inc()

		return file, nil
	case cacheExpired:
		f.stats.metaExpired.Inc()
	default:
		f.stats.metaMisses.Inc()
	}

	item, err := f.backend.GetItem(ctx, id)
	if err != nil {
		return File{}, err
	}

	return f.meta.put(item), nil
}
