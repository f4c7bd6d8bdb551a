// Package migrations holds the ordered schema migrations applied when the
// store is opened. Every migration is idempotent and recorded in
// schema_migrations once applied.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration is one schema step.
type Migration struct {
	Version int
	Name    string
	Func    func(db *sql.DB) error
}

// All lists migrations in application order. Append only.
var All = []Migration{
	{1, "events_table", MigrateEventsTable},
	{2, "views_table", MigrateViewsTable},
	{3, "kv_table", MigrateKVTable},
	{4, "events_partition_index", MigrateEventsPartitionIndex},
}

// Run applies every migration not yet recorded.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := Applied(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range All {
		if applied[m.Version] {
			continue
		}
		if err := m.Func(db); err != nil {
			return fmt.Errorf("migration %03d_%s: %w", m.Version, m.Name, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Name, time.Now().UnixNano(),
		); err != nil {
			return fmt.Errorf("record migration %03d_%s: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// Applied returns the set of recorded migration versions.
func Applied(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
