package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateEventsTable creates the append-only event log. AUTOINCREMENT keeps
// sequence ids strictly increasing even after the highest row is removed
// by hand.
func MigrateEventsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			partition_key TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload BLOB,
			created_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}
	return nil
}
