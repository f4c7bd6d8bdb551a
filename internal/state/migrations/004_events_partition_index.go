package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateEventsPartitionIndex speeds up per-partition replay.
func MigrateEventsPartitionIndex(db *sql.DB) error {
	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0 FROM sqlite_master
		WHERE type = 'index' AND name = 'idx_events_partition'
	`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check idx_events_partition: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := db.Exec(`CREATE INDEX idx_events_partition ON events (partition_key, seq)`); err != nil {
		return fmt.Errorf("failed to create idx_events_partition: %w", err)
	}
	return nil
}
