// Package inventory provides the SQLite-backed asset inventory and the
// relocation journal.
package inventory

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS assets (
	id               TEXT PRIMARY KEY,
	url              TEXT NOT NULL UNIQUE,
	file_name        TEXT NOT NULL DEFAULT '',
	folder           TEXT NOT NULL DEFAULT '',
	size             INTEGER NOT NULL DEFAULT 0,
	mime             TEXT NOT NULL DEFAULT '',
	width            INTEGER,
	height           INTEGER,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	hash_sha256      TEXT NOT NULL DEFAULT '',
	focal_point      TEXT NOT NULL DEFAULT 'null',
	focal_points     TEXT NOT NULL DEFAULT '{}',
	variants         TEXT NOT NULL DEFAULT '{}',
	variants_version INTEGER NOT NULL DEFAULT 0,
	variant_bytes    INTEGER NOT NULL DEFAULT 0,
	area             TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_assets_folder ON assets(folder);

CREATE TABLE IF NOT EXISTS relocation_journal (
	old_url    TEXT PRIMARY KEY,
	new_url    TEXT NOT NULL,
	state      TEXT NOT NULL DEFAULT 'pending',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB with inventory operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("inventory: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("inventory: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("inventory: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
