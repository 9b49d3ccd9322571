// Package sqlite provides a SQLite-backed snapshot store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"lunchbell/internal/types"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshot_meta (
  id       INTEGER PRIMARY KEY CHECK (id = 1),
  saved_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS subscribers (
  identity TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS bindings (
  identity TEXT NOT NULL REFERENCES subscribers(identity) ON DELETE CASCADE,
  kind     TEXT NOT NULL,
  handle   TEXT NOT NULL,
  PRIMARY KEY (identity, kind)
);`

// SnapshotStore persists the snapshot relationally: one row per subscriber and one per
// binding. Each save replaces every row inside a single transaction.
type SnapshotStore struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*SnapshotStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SnapshotStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SnapshotStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (types.Snapshot, error) {
	var savedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT saved_at FROM snapshot_meta WHERE id = 1`).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "read snapshot meta")
	}

	raw := map[string]map[string]string{}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT identity FROM subscribers`)
	if err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "query subscribers")
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, types.Err(types.ErrDataStoreAccess, err, "scan subscriber")
		}
		raw[id] = map[string]string{}
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.sqlDB.QueryContext(ctx, `SELECT identity, kind, handle FROM bindings`)
	if err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "query bindings")
	}
	for rows.Next() {
		var id, kind, handle string
		if err := rows.Scan(&id, &kind, &handle); err != nil {
			_ = rows.Close()
			return nil, types.Err(types.ErrDataStoreAccess, err, "scan binding")
		}
		if m, ok := raw[id]; ok {
			m[kind] = handle
		}
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return types.SnapshotFromRaw(raw), nil
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	_ = rows.Close()
	if err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "iterate rows")
	}
	return nil
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snapshot types.Snapshot) (err error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "begin tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM bindings`); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "clear bindings")
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM subscribers`); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "clear subscribers")
	}
	for id, bindings := range snapshot {
		if _, err = tx.ExecContext(ctx, `INSERT INTO subscribers (identity) VALUES (?)`, id); err != nil {
			return types.Err(types.ErrDataStoreAccess, err, "insert subscriber %s", id)
		}
		for kind, handle := range bindings {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO bindings (identity, kind, handle) VALUES (?, ?, ?)`,
				id, kind.String(), handle,
			); err != nil {
				return types.Err(types.ErrDataStoreAccess, err, "insert binding %s/%s", id, kind)
			}
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO snapshot_meta (id, saved_at) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET saved_at = excluded.saved_at`,
		time.Now().UTC().UnixMilli(),
	); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "update snapshot meta")
	}
	if err = tx.Commit(); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "commit snapshot")
	}
	return nil
}
