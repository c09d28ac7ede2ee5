// Package db provides the SQLite handle used by the database storage backend.
package db

import (
	"database/sql"
	"fmt"

	// SQLite driver registration
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection shared by the queue and throttle stores.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// initializes the schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return db, nil
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS throttle_entries (
			kind TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			last_sent_at DATETIME NOT NULL,
			sent_count_today INTEGER NOT NULL,
			day_bucket TEXT NOT NULL,
			PRIMARY KEY (kind, recipient_id)
		);
		CREATE TABLE IF NOT EXISTS queue_items (
			item_key TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			contact_address TEXT NOT NULL,
			message TEXT NOT NULL,
			kind TEXT NOT NULL,
			priority TEXT NOT NULL,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			enqueued_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_queue_items_ack ON queue_items(acknowledged);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
	`)
	return err
}
