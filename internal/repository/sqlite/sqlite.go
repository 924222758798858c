// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// We use modernc.org/sqlite, a pure-Go translation of the SQLite C code: no
// CGo, no C compiler, trivial cross-compilation. A single database file (or
// ":memory:" in tests) holds the accounts and account_options tables.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides the repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/tableforge.db" → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Force an immediate connection so a bad path surfaces here rather than
	// on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// SQLite ships with foreign keys off; the accounts → account_options
	// reference depends on them.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool, flushing the WAL and releasing
// the file lock. Always defer this next to New.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps this
// idempotent across restarts.
//
// Every account_options column is nullable: NULL means "no override, inherit
// the system default", which is distinct from a stored zero value. The
// accounts table enforces case-insensitive name uniqueness at write time via
// COLLATE NOCASE, which also makes name lookups case-insensitive.
//
// The foreign key points accounts → account_options, so the required cascade
// (deleting an account deletes its options) cannot be a DB-level ON DELETE
// rule; Delete performs it as an explicit transaction instead.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS account_options (
			id                           TEXT PRIMARY KEY,
			fow_colour                   TEXT,
			grid_colour                  TEXT,
			ruler_colour                 TEXT,
			invert_alt                   BOOLEAN,
			disable_scroll_to_zoom       BOOLEAN,
			use_high_dpi                 BOOLEAN,
			grid_size                    INTEGER,
			use_as_physical_board        BOOLEAN,
			mini_size                    REAL,
			ppi                          INTEGER,
			initiative_camera_lock       BOOLEAN,
			initiative_vision_lock       BOOLEAN,
			initiative_effect_visibility TEXT
		);
	`)
	if err != nil {
		return fmt.Errorf("creating account_options table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL UNIQUE COLLATE NOCASE,
			email         TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			options_id    TEXT NOT NULL REFERENCES account_options(id),
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_options_id ON accounts(options_id);
	`)
	if err != nil {
		return fmt.Errorf("creating accounts table: %w", err)
	}

	return nil
}
