package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateKVTable creates the generic key/value table used for the relay
// cursor and thread correlation records.
func MigrateKVTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB,
			updated_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	return nil
}
