package vfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/tonimelisma/drivevfs/internal/driveapi"
)

// Reasons reported in ReadMeta.RangeNotSatisfiable.
const (
	RangeInvalid     = "Invalid Range"
	RangeOutOfBounds = "Range out of bounds"
)

// Range asks for part of an object. With Start set, End defaults to the last
// byte. With only End set, End is a suffix length: the last End bytes. A
// non-empty ETag that does not match the object disables the range and the
// whole object is served.
type Range struct {
	Start *int64
	End   *int64
	ETag  string
}

// ReadOptions are the conditions of a read.
type ReadOptions struct {
	// ETag short-circuits to NotModified when it equals the object's etag.
	ETag  string
	Range *Range
	// Head returns metadata without opening the download.
	Head bool
}

// PartialContent describes the byte span a ranged read returns.
type PartialContent struct {
	Start int64
	End   int64
	Size  int64 // size of the whole object
}

// ReadMeta is the outcome of a read. At most one of NotModified,
// RangeNotSatisfiable, and Body is set; all three are empty for a head read.
type ReadMeta struct {
	MimeType string
	// Size is the byte count Body will produce.
	Size int64
	ETag string

	NotModified         bool
	RangeNotSatisfiable string
	PartialContent      *PartialContent

	// Body is the open download. The caller must close it.
	Body io.ReadCloser
}

// ReadFile opens the object at p for reading.
func (f *FS) ReadFile(ctx context.Context, p string, opts ReadOptions) (*ReadMeta, error) {
	p = cleanPath(p)

	logger := f.logger.With(
		slog.String("op_id", uuid.NewString()),
		slog.String("path", p),
	)

	id, err := f.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	file, err := f.Metadata(ctx, id)
	if err != nil {
		return nil, err
	}

	if file.IsFolder() {
		return nil, invalid("read", p, "is a folder")
	}

	if file.DownloadURL == "" {
		return nil, invalid("read", p, "is not downloadable")
	}

	meta := &ReadMeta{
		MimeType: mimeType(file.MimeType, p),
		Size:     file.Size,
		ETag:     file.ETag,
	}

	if opts.ETag != "" && opts.ETag == meta.ETag {
		logger.Debug("etag matches, not modified")
		meta.NotModified = true

		return meta, nil
	}

	var rangeHeader string

	if r := opts.Range; r != nil && (r.ETag == "" || r.ETag == meta.ETag) {
		start, end, reason := r.bounds(meta.Size)
		if reason != "" {
			meta.RangeNotSatisfiable = reason

			return meta, nil
		}

		rangeHeader = fmt.Sprintf("bytes=%d-%d", start, end)
		meta.PartialContent = &PartialContent{Start: start, End: end, Size: meta.Size}
		meta.Size = end - start + 1
	}

	if opts.Head {
		return meta, nil
	}

	resp, err := f.backend.OpenDownload(ctx, file.DownloadURL, rangeHeader)
	if err != nil {
		logger.Warn("download failed", slog.String("error", err.Error()))

		return nil, pathErr("read", p, fmt.Errorf("%w: %w", ErrDownload, err))
	}

	f.stats.downloads.Inc()
	logger.Debug("download opened",
		slog.Int("status", resp.StatusCode),
		slog.Int64("size", meta.Size),
	)

	meta.Body = resp.Body

	return meta, nil
}

// bounds turns r into an inclusive [start, end] span of an object of size
// bytes, or returns the reason it cannot be served.
func (r *Range) bounds(size int64) (start, end int64, reason string) {
	switch {
	case r.Start != nil:
		start = *r.Start
		end = size - 1

		if r.End != nil {
			end = *r.End
		}
	case r.End != nil:
		start = size - *r.End
		end = size - 1
	default:
		return 0, 0, RangeInvalid
	}

	if end < start || start < 0 || end >= size {
		return 0, 0, RangeOutOfBounds
	}

	return start, end, ""
}

// mimeType keeps the stored type unless it is the octet-stream placeholder,
// in which case the type is inferred from name's extension.
func mimeType(stored, name string) string {
	if stored != "" && stored != driveapi.OctetStream {
		return stored
	}

	inferred := mime.TypeByExtension(path.Ext(name))
	if inferred == "" {
		return driveapi.OctetStream
	}

	if i := strings.IndexByte(inferred, ';'); i >= 0 {
		inferred = strings.TrimSpace(inferred[:i])
	}

	return inferred
}
