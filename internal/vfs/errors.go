package vfs

import (
	"errors"
	"fmt"
	"io/fs"
)

// Sentinel errors. Path-specific failures arrive wrapped in *fs.PathError;
// use errors.Is to branch on them. ErrNotFound and ErrExist also match
// fs.ErrNotExist and fs.ErrExist.
var (
	ErrNotFound         = fmt.Errorf("vfs: %w", fs.ErrNotExist)
	ErrExist            = fmt.Errorf("vfs: %w", fs.ErrExist)
	ErrInvalidOperation = errors.New("vfs: invalid operation")
	ErrNotImplemented   = fmt.Errorf("vfs: %w", errors.ErrUnsupported)
	ErrDownload         = errors.New("vfs: download failed")
	ErrUpload           = errors.New("vfs: upload failed")
)

func pathErr(op, path string, err error) error {
	return &fs.PathError{Op: op, Path: path, Err: err}
}

func invalid(op, path, reason string) error {
	return pathErr(op, path, fmt.Errorf("%w: %s", ErrInvalidOperation, reason))
}
