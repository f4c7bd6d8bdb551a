package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateViewsTable creates the view cache.
func MigrateViewsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS views (
			key TEXT PRIMARY KEY,
			state BLOB NOT NULL,
			last_seq INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create views table: %w", err)
	}
	return nil
}
