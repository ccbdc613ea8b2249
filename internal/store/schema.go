// Package store is the persistent store: an embedded SQLite database holding
// bit types, their properties, bits, bit data, notes, collections and
// collection items. It speaks rows; the manager package turns them into
// structured entities.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// bits.type_id carries no foreign key: a bit whose type vanished
// is dropped from structured reads rather than rejected at write time.
const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS bit_types (
	id          TEXT PRIMARY KEY,
	origin      TEXT NOT NULL DEFAULT 'user',
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	icon_name   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS bit_type_properties (
	id            TEXT NOT NULL,
	type_id       TEXT NOT NULL REFERENCES bit_types(id),
	name          TEXT NOT NULL,
	type          TEXT NOT NULL,
	required      INTEGER NOT NULL DEFAULT 0,
	default_value TEXT NOT NULL DEFAULT 'null',
	options       TEXT NOT NULL DEFAULT 'null',
	order_index   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (type_id, id)
);

CREATE TABLE IF NOT EXISTS bits (
	id         TEXT PRIMARY KEY,
	type_id    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	pinned     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS bit_data (
	bit_id      TEXT NOT NULL REFERENCES bits(id),
	property_id TEXT NOT NULL,
	value       TEXT NOT NULL DEFAULT 'null',
	PRIMARY KEY (bit_id, property_id)
);

CREATE TABLE IF NOT EXISTS bit_notes (
	id         TEXT PRIMARY KEY,
	bit_id     TEXT NOT NULL REFERENCES bits(id),
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	content    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS collections (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	icon_name  TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS collection_items (
	id            TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL REFERENCES collections(id),
	bit_id        TEXT NOT NULL REFERENCES bits(id),
	order_index   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_bits_type ON bits(type_id);
CREATE INDEX IF NOT EXISTS idx_notes_bit ON bit_notes(bit_id);
CREATE INDEX IF NOT EXISTS idx_items_collection ON collection_items(collection_id);
CREATE INDEX IF NOT EXISTS idx_items_bit ON collection_items(bit_id);
`

// DB wraps a sql.DB holding the bitkeep tables.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Tx is one transaction. All row operations hang off it so that a logical
// entity write is a single begin/commit/rollback unit.
type Tx struct {
	tx *sql.Tx
}

// View runs fn in a transaction that is always rolled back. Reads inside fn
// observe one consistent snapshot.
func (db *DB) View(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only
	return fn(&Tx{tx: tx})
}

// Update runs fn in a transaction that is committed if fn returns nil and
// rolled back otherwise, so no row of a failed write survives.
func (db *DB) Update(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", classify(err))
	}
	return nil
}
