package vfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// childFetchLimit bounds concurrent metadata fetches for one listing.
const childFetchLimit = 8

// cleanPath puts p in the form the path cache is keyed by: NFC, rooted, and
// with one trailing slash removed (except for "/").
func cleanPath(p string) string {
	p = norm.NFC.String(p)

	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}

	return p
}

func childPath(parent, title string) string {
	title = norm.NFC.String(title)

	if parent == "/" {
		return "/" + title
	}

	return parent + "/" + title
}

// Resolve maps a slash-separated path to an object ID. A miss resolves the
// parent, lists it, and memoizes the path of every child the listing
// returns. Returns an error matching ErrNotFound when nothing is there.
func (f *FS) Resolve(ctx context.Context, p string) (string, error) {
	return f.resolve(ctx, cleanPath(p))
}

func (f *FS) resolve(ctx context.Context, p string) (string, error) {
	if id, ok := f.paths.Lookup(p); ok {
		f.stats.pathHits.Inc()
		f.logger.Debug("path cache hit", slog.String("path", p))

		return id, nil
	}

	if p == "/" {
		f.paths.Store("/", RootID)

		return RootID, nil
	}

	f.stats.pathMisses.Inc()

	parent := path.Dir(p)

	parentID, err := f.resolve(ctx, parent)
	if err != nil {
		return "", err
	}

	f.logger.Info("scanning folder",
		slog.String("path", parent),
		slog.String("target", p),
	)

	files, err := f.listFiles(ctx, parentID)
	if err != nil {
		return "", fmt.Errorf("vfs: listing %s: %w", parent, err)
	}

	var (
		found    string
		ok       bool
		fetchErr error
	)

	// Iteration order decides duplicates: the last child with a given title
	// owns the path.
	for _, r := range files {
		if r.err != nil {
			fetchErr = errors.Join(fetchErr, r.err)
			continue
		}

		cp := childPath(parent, r.file.Title)
		f.paths.Store(cp, r.file.ID)

		if cp == p {
			found, ok = r.file.ID, true
		}
	}

	if ok {
		return found, nil
	}

	// A child whose metadata could not be fetched may be the target.
	if fetchErr != nil {
		return "", fmt.Errorf("vfs: resolving %s: %w", p, fetchErr)
	}

	return "", pathErr("resolve", p, ErrNotFound)
}

type childResult struct {
	id   string
	file File
	err  error
}

// listFiles lists a folder live and fetches every child's metadata through
// the metadata cache. Results keep listing order; a failed fetch is carried
// in its slot.
func (f *FS) listFiles(ctx context.Context, folderID string) ([]childResult, error) {
	children, err := f.backend.ListChildren(ctx, folderID)
	f.stats.listings.Inc()

	if err != nil {
		return nil, err
	}

	results := make([]childResult, len(children.IDs))

	var g errgroup.Group
	g.SetLimit(childFetchLimit)

	for i, id := range children.IDs {
		g.Go(func() error {
			file, err := f.Metadata(ctx, id)
			results[i] = childResult{id: id, file: file, err: err}

			if err != nil {
				f.logger.Warn("child metadata fetch failed",
					slog.String("item_id", id),
					slog.String("error", err.Error()),
				)
			}

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // per-child errors live in results

	return results, nil
}
