package vfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"

	"github.com/tonimelisma/drivevfs/internal/driveapi"
)

// Mkdir creates a folder at p. The parent must exist. Fails with ErrExist
// when anything is already at p.
func (f *FS) Mkdir(ctx context.Context, p string) error {
	p = cleanPath(p)

	logger := f.logger.With(
		slog.String("op_id", uuid.NewString()),
		slog.String("path", p),
	)

	_, err := f.resolve(ctx, p)
	if err == nil {
		return pathErr("mkdir", p, ErrExist)
	}

	if !errors.Is(err, ErrNotFound) {
		return err
	}

	parentID, err := f.resolve(ctx, path.Dir(p))
	if err != nil {
		return err
	}

	item, err := f.backend.CreateItem(ctx, parentID, path.Base(p), driveapi.FolderMimeType)
	if err != nil {
		return fmt.Errorf("vfs: creating folder %s: %w", p, err)
	}

	f.stats.creates.Inc()
	f.meta.put(item)
	f.paths.Store(p, item.ID)

	logger.Info("created folder", slog.String("item_id", item.ID))

	return nil
}

// RemoveFile is not implemented.
func (f *FS) RemoveFile(_ context.Context, p string) error {
	return pathErr("remove", p, ErrNotImplemented)
}

// RemoveDir is not implemented.
func (f *FS) RemoveDir(_ context.Context, p string) error {
	return pathErr("rmdir", p, ErrNotImplemented)
}

// Rename is not implemented.
func (f *FS) Rename(_ context.Context, from, _ string) error {
	return pathErr("rename", from, ErrNotImplemented)
}

// Copy is not implemented.
func (f *FS) Copy(_ context.Context, from, _ string) error {
	return pathErr("copy", from, ErrNotImplemented)
}

// Symlink is not implemented.
func (f *FS) Symlink(_ context.Context, _, link string) error {
	return pathErr("symlink", link, ErrNotImplemented)
}

// Stat is not implemented; ReadFile with Head set returns an object's
// metadata.
func (f *FS) Stat(_ context.Context, p string) (Stat, error) {
	return Stat{}, pathErr("stat", p, ErrNotImplemented)
}
