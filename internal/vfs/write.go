package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/google/uuid"
)

// WriteOptions carries the content of a write.
type WriteOptions struct {
	// Stream is read from as soon as WriteFile is called. If it is an
	// io.Closer it is closed when the write fails, and WriteFile returns
	// only after the pending Read has come back. A Stream that is not an
	// io.Closer must unblock on its own; until it does, one goroutine
	// stays parked in its Read.
	Stream io.Reader
}

// WriteResult identifies the object written.
type WriteResult struct {
	ID string
}

// WriteFile stores Stream's content at p, creating the object when nothing
// exists there and overwriting it otherwise. Input is spooled while the
// destination is looked up, replayed in order once the upload opens, and
// then piped through directly. On failure the spool is dropped and a
// closable Stream is closed; see WriteOptions.Stream.
func (f *FS) WriteFile(ctx context.Context, p string, opts WriteOptions) (*WriteResult, error) {
	if opts.Stream == nil {
		return nil, invalid("write", p, "no input stream")
	}

	p = cleanPath(p)

	logger := f.logger.With(
		slog.String("op_id", uuid.NewString()),
		slog.String("path", p),
	)

	sp := newSpool(opts.Stream, f.bufferLimit)
	go sp.run()

	fail := func(err error) (*WriteResult, error) {
		sp.Close()

		if c, ok := opts.Stream.(io.Closer); ok {
			if closeErr := c.Close(); closeErr != nil {
				logger.Debug("closing input after failure", slog.String("error", closeErr.Error()))
			}

			select {
			case <-sp.done:
			case <-ctx.Done():
			}
		}

		return nil, err
	}

	if p == "/" {
		return fail(invalid("write", p, "is the root folder"))
	}

	id, err := f.writeTarget(ctx, p, logger)
	if err != nil {
		return fail(err)
	}

	logger.Info("uploading", slog.String("item_id", id))

	item, err := f.backend.Upload(ctx, id, sp.attach())
	if err != nil {
		logger.Error("upload failed",
			slog.String("item_id", id),
			slog.String("error", err.Error()),
		)

		return fail(pathErr("write", p, fmt.Errorf("%w: %w", ErrUpload, err)))
	}

	f.stats.uploads.Inc()

	// The cached record's size and etag predate the upload.
	f.meta.evict(id)

	logger.Info("upload complete",
		slog.String("item_id", id),
		slog.Int64("size", item.Size),
	)

	return &WriteResult{ID: id}, nil
}

// writeTarget resolves p, creating an empty object under its parent when p
// does not exist yet.
func (f *FS) writeTarget(ctx context.Context, p string, logger *slog.Logger) (string, error) {
	id, err := f.resolve(ctx, p)
	if err == nil {
		return id, nil
	}

	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	parentID, err := f.resolve(ctx, path.Dir(p))
	if err != nil {
		return "", err
	}

	item, err := f.backend.CreateItem(ctx, parentID, path.Base(p), "")
	if err != nil {
		return "", fmt.Errorf("vfs: creating %s: %w", p, err)
	}

	f.stats.creates.Inc()
	f.meta.put(item)
	f.paths.Store(p, item.ID)

	logger.Info("created file", slog.String("item_id", item.ID))

	return item.ID, nil
}
