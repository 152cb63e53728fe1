package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on sessions.updated_at for pruning
const currentSchemaVersion = 1

// SQLite is a RecordStore backed by a SQLite database.
//
// A lock window is a write transaction. Open begins it (IMMEDIATE, so the
// database write lock is taken up front), Release commits it. Windows of
// different ids are serialized by SQLite itself; the lock table only
// orders callers inside this process before they reach the database.
type SQLite struct {
	db    *sql.DB
	locks *lockTable

	mu  sync.Mutex
	txs map[string]*sql.Tx
}

var _ Store = (*SQLite)(nil)

// OpenSQLite creates or opens a database at path. Applies required pragmas
// and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// With a single connection an in-memory database is also shared by
	// every caller.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db, locks: newLockTable(), txs: make(map[string]*sql.Tx)}, nil
}

// dsn adds driver options to a path. go-sqlite3 reads options after '?'.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate"
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using SQLite methods when available.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Open implements RecordStore.
func (s *SQLite) Open(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := s.locks.acquire(ctx, id); err != nil {
		return err
	}

	// database/sql rolls a transaction back when its context ends. The
	// window must survive until Release, whatever happens to ctx.
	tx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		_ = s.locks.release(id)
		return fmt.Errorf("open %q: begin tx: %w", id, err)
	}

	s.mu.Lock()
	s.txs[id] = tx
	s.mu.Unlock()
	return nil
}

// ReadLocked implements RecordStore.
func (s *SQLite) ReadLocked(ctx context.Context, id string) ([]byte, error) {
	tx, err := s.tx("read", id)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", id, err)
	}
	return data, nil
}

// WriteLocked implements RecordStore.
func (s *SQLite) WriteLocked(ctx context.Context, id string, data []byte) error {
	tx, err := s.tx("write", id)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, data, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			version = sessions.version + 1,
			updated_at = excluded.updated_at
	`, id, data, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("write %q: %w", id, err)
	}
	return nil
}

// DeleteLocked implements RecordStore.
func (s *SQLite) DeleteLocked(ctx context.Context, id string) error {
	tx, err := s.tx("delete", id)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	return nil
}

// Release implements RecordStore. The lock is released even when the
// commit fails; the commit error is returned.
func (s *SQLite) Release(_ context.Context, id string) error {
	s.mu.Lock()
	tx, ok := s.txs[id]
	delete(s.txs, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("release %q: %w", id, ErrNotLocked)
	}

	commitErr := tx.Commit()
	if err := s.locks.release(id); err != nil {
		return err
	}
	if commitErr != nil {
		return fmt.Errorf("release %q: commit: %w", id, commitErr)
	}
	return nil
}

// Version returns how many times id was written, 0 if it has no record.
// It reads outside any lock window.
func (s *SQLite) Version(ctx context.Context, id string) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM sessions WHERE id = ?`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("version %q: %w", id, err)
	}
	return version, nil
}

// List implements Lister.
func (s *SQLite) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return ids, nil
}

// Prune implements Pruner. Open windows keep the single connection busy,
// so the DELETE waits for them to finish.
func (s *SQLite) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune sessions: rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLite) tx(op, id string) (*sql.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", op, id, ErrNotLocked)
	}
	return tx, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the index Prune scans.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_sessions_updated_at
		ON sessions(updated_at)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
