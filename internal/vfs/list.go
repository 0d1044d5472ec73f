package vfs

import (
	"context"
	"io"
	"iter"
	"sync"
	"time"

	"github.com/tonimelisma/drivevfs/internal/driveapi"
)

// Access bits reported in Stat.Access.
const (
	AccessRead  = 4
	AccessWrite = 2
)

// ListOptions are the conditions of a listing.
type ListOptions struct {
	// ETag short-circuits to NotModified when it equals the listing's etag.
	ETag string
	// Head returns the etag without producing entries.
	Head bool
}

// ListMeta is the outcome of a listing. Entries is nil when NotModified is
// set or for a head listing.
type ListMeta struct {
	ETag        string
	NotModified bool
	Entries     *DirStream
}

// Stat summarizes one child. When the child's metadata could not be fetched
// only ID and Err are set.
type Stat struct {
	ID         string
	Name       string
	Access     int
	Size       int64
	ModifiedAt time.Time
	MimeType   string
	Labels     driveapi.Labels
	Err        error
}

// IsDir reports whether the child is a folder.
func (s Stat) IsDir() bool {
	return s.MimeType == driveapi.FolderMimeType
}

// ReadDir lists the folder at p. Child metadata is fetched one entry at a
// time as the caller pulls from Entries.
func (f *FS) ReadDir(ctx context.Context, p string, opts ListOptions) (*ListMeta, error) {
	p = cleanPath(p)

	id, err := f.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	children, err := f.backend.ListChildren(ctx, id)
	f.stats.listings.Inc()

	if err != nil {
		return nil, pathErr("readdir", p, err)
	}

	meta := &ListMeta{ETag: children.ETag}

	if opts.ETag != "" && opts.ETag == meta.ETag {
		meta.NotModified = true

		return meta, nil
	}

	if opts.Head {
		return meta, nil
	}

	meta.Entries = &DirStream{fs: f, ids: children.IDs}

	return meta, nil
}

// DirStream produces a folder's entries on demand. No metadata is fetched
// between calls to Next; abandoning the stream stops all fetching.
type DirStream struct {
	fs *FS

	mu   sync.Mutex
	ids  []string
	next int
}

// Len is the number of entries the stream produces in total.
func (d *DirStream) Len() int {
	return len(d.ids)
}

// Next fetches and returns the next entry, or io.EOF after the last one. A
// failed fetch is reported in Stat.Err, not as Next's error.
func (d *DirStream) Next(ctx context.Context) (Stat, error) {
	if err := ctx.Err(); err != nil {
		return Stat{}, err
	}

	d.mu.Lock()
	if d.next >= len(d.ids) {
		d.mu.Unlock()

		return Stat{}, io.EOF
	}

	id := d.ids[d.next]
	d.next++
	d.mu.Unlock()

	return d.fs.stat(ctx, id), nil
}

// All yields the remaining entries in listing order. It stops early when ctx
// is canceled.
func (d *DirStream) All(ctx context.Context) iter.Seq[Stat] {
	return func(yield func(Stat) bool) {
		for {
			st, err := d.Next(ctx)
			if err != nil {
				return
			}

			if !yield(st) {
				return
			}
		}
	}
}

func (f *FS) stat(ctx context.Context, id string) Stat {
	st := Stat{ID: id}

	file, err := f.Metadata(ctx, id)
	if err != nil {
		st.Err = err

		return st
	}

	st.Name = file.Title
	st.Access = AccessRead
	if file.Editable {
		st.Access |= AccessWrite
	}

	st.Size = file.Size
	st.ModifiedAt = file.ModifiedAt
	st.MimeType = mimeType(file.MimeType, file.Title)
	st.Labels = file.Labels

	return st
}
