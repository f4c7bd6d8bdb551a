// internal/state/event.go
package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/foreman/internal/types"
)

// Append adds an event to the partition and returns its sequence id.
// The payload is stored as given; the store never interprets it.
func (s *Store) Append(ctx context.Context, partition, kind string, payload []byte) (int64, error) {
	if partition == "" || kind == "" {
		return 0, fmt.Errorf("append event: partition and kind are required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (partition_key, kind, payload, created_at) VALUES (?, ?, ?, ?)`,
		partition, kind, payload, toNanos(s.now()),
	)
	if err != nil {
		return 0, wrapDBError("append event", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, wrapDBError("append event", err)
	}
	return seq, nil
}

// Scan returns events after opts.After in ascending sequence order,
// optionally restricted to partitions and excluding one kind.
func (s *Store) Scan(ctx context.Context, opts types.ScanOptions) ([]*types.Event, error) {
	var (
		where []string
		args  []any
	)
	where = append(where, "seq > ?")
	args = append(args, opts.After)

	if len(opts.Partitions) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(opts.Partitions)), ",")
		where = append(where, "partition_key IN ("+marks+")")
		for _, p := range opts.Partitions {
			args = append(args, p)
		}
	}
	if opts.ExcludeKind != "" {
		where = append(where, "kind <> ?")
		args = append(args, opts.ExcludeKind)
	}

	query := `SELECT seq, partition_key, kind, payload, created_at FROM events WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY seq`
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("scan events", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		var (
			e       types.Event
			created int64
		)
		if err := rows.Scan(&e.Seq, &e.Partition, &e.Kind, &e.Payload, &created); err != nil {
			return nil, wrapDBError("scan event row", err)
		}
		e.CreatedAt = fromNanos(created)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("scan events", err)
	}
	return events, nil
}

// LastSeq returns the highest sequence id in the log, or 0 when empty.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq)
	if err != nil {
		return 0, wrapDBError("last seq", err)
	}
	return seq, nil
}
