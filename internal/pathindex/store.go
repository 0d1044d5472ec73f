// Package pathindex persists path -> object ID mappings in SQLite so a
// restarted process starts with the paths an earlier run discovered. Like
// the in-memory store, entries never expire; Reset clears them.
package pathindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

const (
	sqlLookup = `SELECT id FROM paths WHERE path = ?`
	sqlUpsert = `INSERT INTO paths (path, id, stored_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET id = excluded.id, stored_at = excluded.stored_at`
	sqlClear = `DELETE FROM paths`
	sqlCount = `SELECT COUNT(*) FROM paths`
)

// Store is a SQLite-backed path cache. Write failures are logged, not
// returned: a lost entry only costs a future folder listing.
type Store struct {
	db     *sql.DB
	rootID string
	logger *slog.Logger
	now    func() time.Time

	lookup *sql.Stmt
	upsert *sql.Stmt
}

// Open opens (creating if needed) the index at dbPath, applies migrations,
// and seeds "/" -> rootID. Use ":memory:" for tests.
func Open(ctx context.Context, dbPath, rootID string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening path index", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("pathindex: open sqlite: %w", err)
	}

	// One connection keeps ":memory:" databases shared and writes serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pathindex: set WAL mode: %w", err)
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, rootID: rootID, logger: logger, now: time.Now}

	if s.lookup, err = db.PrepareContext(ctx, sqlLookup); err != nil {
		db.Close()
		return nil, fmt.Errorf("pathindex: prepare lookup: %w", err)
	}

	if s.upsert, err = db.PrepareContext(ctx, sqlUpsert); err != nil {
		db.Close()
		return nil, fmt.Errorf("pathindex: prepare upsert: %w", err)
	}

	if err := s.put(ctx, "/", rootID); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Lookup returns the ID stored for path.
func (s *Store) Lookup(path string) (string, bool) {
	var id string

	err := s.lookup.QueryRowContext(context.Background(), path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}

	if err != nil {
		s.logger.Warn("path index lookup failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return "", false
	}

	return id, true
}

// Store records path -> id, replacing any earlier mapping.
func (s *Store) Store(path, id string) {
	if err := s.put(context.Background(), path, id); err != nil {
		s.logger.Warn("path index store failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// Reset deletes every mapping and reseeds the root in one transaction.
func (s *Store) Reset() {
	if err := s.Clear(context.Background()); err != nil {
		s.logger.Warn("path index reset failed", slog.String("error", err.Error()))
	}
}

// Len returns the number of stored mappings, root included.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, sqlCount).Scan(&n); err != nil {
		return 0, fmt.Errorf("pathindex: count: %w", err)
	}

	return n, nil
}

// Close releases the database.
func (s *Store) Close() error {
	s.lookup.Close()
	s.upsert.Close()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("pathindex: close: %w", err)
	}

	return nil
}

func (s *Store) put(ctx context.Context, path, id string) error {
	if _, err := s.upsert.ExecContext(ctx, path, id, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("pathindex: upsert %s: %w", path, err)
	}

	return nil
}

// Clear is Reset with the error returned. Logout uses it so a failed wipe
// is reported instead of leaving another account's paths behind.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pathindex: begin reset: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, sqlClear); err != nil {
		return fmt.Errorf("pathindex: clear: %w", err)
	}

	if _, err := tx.StmtContext(ctx, s.upsert).ExecContext(ctx, "/", s.rootID, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("pathindex: reseed root: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pathindex: commit reset: %w", err)
	}

	s.logger.Info("path index reset")

	return nil
}
