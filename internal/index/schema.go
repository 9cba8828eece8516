// Package index provides SQLite-backed annotation indexing with optional
// FTS5 full-text search over labels and reviewer notes.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path           TEXT PRIMARY KEY,
	task_type      TEXT NOT NULL DEFAULT '',
	profile        TEXT NOT NULL DEFAULT '',
	checksum       TEXT NOT NULL DEFAULT '',
	total_items    INTEGER NOT NULL DEFAULT 0,
	verified_items INTEGER NOT NULL DEFAULT 0,
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS items (
	doc_path       TEXT NOT NULL,
	item_id        TEXT NOT NULL,
	data_source_id TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'unreviewed',
	top_score      REAL,
	labels         TEXT NOT NULL DEFAULT '[]',
	notes          TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (doc_path, item_id)
);

CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
CREATE INDEX IF NOT EXISTS idx_items_source ON items(data_source_id);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
