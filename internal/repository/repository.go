// Package repository persists snapshot records in a local SQLite database.
// Every logical write runs in its own transaction so concurrent callers
// each observe an atomic, all-or-nothing effect.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"

	"github.com/dgnsrekt/tab_arbor/internal/snapshot"

	_ "modernc.org/sqlite"
)

// schemaVersion is bumped only when the snapshot collection shape changes.
const schemaVersion = 1

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS snapshots (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	is_auto_save INTEGER NOT NULL DEFAULT 0,
	tab_count    INTEGER NOT NULL DEFAULT 0,
	data         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at);
`

// Store is a snapshot document store keyed by snapshot id, with a
// secondary index on creation time for range scans.
type Store struct {
	path string
	db   *sql.DB
}

// Open opens (or creates) the store at path and runs the idempotent
// schema step. The creation step runs on every open, not just the first.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("repository: mkdir %s: %w", filepath.Dir(path), err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("repository: %s: %w", p, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: ping: %w", err)
	}

	return &Store{path: path, db: db}, nil
}

// migrate creates the snapshot collection if absent and records the
// schema version. Opening at a higher version than stored upgrades in
// place; the statements are all check-before-create so re-running is
// harmless.
func migrate(db *sql.DB) error {
	var stored int
	if err := db.QueryRow("PRAGMA user_version").Scan(&stored); err != nil {
		return fmt.Errorf("repository: read user_version: %w", err)
	}
	if stored > schemaVersion {
		return fmt.Errorf("repository: database schema version %d is newer than supported %d", stored, schemaVersion)
	}

	if _, err := db.Exec(createSnapshotsTable); err != nil {
		return fmt.Errorf("repository: create snapshots collection: %w", err)
	}

	if stored < schemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("repository: set user_version: %w", err)
		}
		slog.Info("snapshot store schema upgraded", "from", stored, "to", schemaVersion)
	}
	return nil
}

// Put upserts a record by id inside one transaction. A failed write
// leaves no partial record visible to subsequent reads.
func (s *Store) Put(ctx context.Context, rec *snapshot.Record) (string, error) {
	if !strings.HasPrefix(rec.ID, snapshot.IDPrefix) {
		return "", snapshot.NewError(snapshot.CodeValidation, fmt.Sprintf("invalid snapshot id %q", rec.ID), nil)
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return "", fmt.Errorf("repository: marshal data for %s: %w", rec.ID, err)
	}

	err = s.runTx(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, `
			INSERT INTO snapshots (id, name, created_at, is_auto_save, tab_count, data)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				created_at = excluded.created_at,
				is_auto_save = excluded.is_auto_save,
				tab_count = excluded.tab_count,
				data = excluded.data`,
			rec.ID, rec.Name, rec.CreatedAt.UnixMilli(), boolToInt(rec.IsAutoSave), len(rec.Data.Tabs), string(data))
		return execErr
	})
	if err != nil {
		return "", translateErr("put "+rec.ID, err)
	}
	return rec.ID, nil
}

// Get reads a record by id.
func (s *Store) Get(ctx context.Context, id string) (*snapshot.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, is_auto_save, data
		FROM snapshots WHERE id = ?`, id)

	var (
		rec        snapshot.Record
		createdAt  int64
		isAutoSave int
		data       string
	)
	err := row.Scan(&rec.ID, &rec.Name, &createdAt, &isAutoSave, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, snapshot.NewError(snapshot.CodeNotFound, "snapshot not found: "+id, nil)
	}
	if err != nil {
		return nil, translateErr("get "+id, err)
	}

	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.IsAutoSave = isAutoSave != 0
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, snapshot.NewError(snapshot.CodeMalformed, "stored snapshot data unreadable: "+id, err)
	}
	return &rec, nil
}

// Delete removes a record by id. Deleting a missing id succeeds silently.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.runTx(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
		return execErr
	})
	if err != nil {
		return translateErr("delete "+id, err)
	}
	return nil
}

// List returns snapshot metadata ordered by creation time ascending.
// Insertion order under concurrent writers does not equal creation-time
// order, hence the explicit sort key.
func (s *Store) List(ctx context.Context) ([]snapshot.Meta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, is_auto_save, tab_count
		FROM snapshots ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, translateErr("list", err)
	}
	defer rows.Close()

	metas := make([]snapshot.Meta, 0)
	for rows.Next() {
		var (
			m          snapshot.Meta
			createdAt  int64
			isAutoSave int
		)
		if err := rows.Scan(&m.ID, &m.Name, &createdAt, &isAutoSave, &m.TabCount); err != nil {
			return nil, translateErr("list scan", err)
		}
		m.CreatedAt = time.UnixMilli(createdAt).UTC()
		m.IsAutoSave = isAutoSave != 0
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("list rows", err)
	}
	return metas, nil
}

// Count returns the number of stored snapshots.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&n); err != nil {
		return 0, translateErr("count", err)
	}
	return n, nil
}

// Close closes all pooled connections. It must be called before any
// destructive operation on the underlying file so the operation is not
// blocked behind lingering open connections.
func (s *Store) Close() error {
	return s.db.Close()
}

// Destroy closes the store and removes the database file and its WAL
// sidecars. In-memory stores are just closed.
func (s *Store) Destroy() error {
	if err := s.Close(); err != nil {
		return fmt.Errorf("repository: close before destroy: %w", err)
	}
	if s.path == ":memory:" {
		return nil
	}
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("repository: remove %s: %w", p, err)
		}
	}
	return nil
}

// runTx executes fn inside a transaction, retrying briefly when SQLite
// reports a busy database. Non-busy errors stop the retry loop.
func (s *Store) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond

	for attempt := 0; ; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) || attempt >= 3 {
			return err
		}
		sleep := bo.NextBackOff()
		if sleep == backoff.Stop {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (s *Store) runOnce(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: commit: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func isQuota(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sqlite_full") ||
		strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "no space left on device")
}

// translateErr maps engine errors to the stable taxonomy. A timed-out
// caller must not assume the side effect did not happen; the underlying
// request may still complete.
func translateErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isQuota(err):
		return snapshot.NewError(snapshot.CodeQuotaExceeded, "storage quota exhausted during "+op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return snapshot.NewError(snapshot.CodeTxTimeout, "store operation timed out: "+op, err)
	default:
		return fmt.Errorf("repository: %s: %w", op, err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
