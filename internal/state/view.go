package state

import (
	"context"

	"github.com/user/foreman/internal/types"
)

// GetView returns the cached view for key.
func (s *Store) GetView(ctx context.Context, key string) (*types.View, error) {
	var (
		v                types.View
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, state, last_seq, created_at, updated_at FROM views WHERE key = ?`, key,
	).Scan(&v.Key, &v.State, &v.LastSeq, &created, &updated)
	if err != nil {
		return nil, wrapDBError("get view "+key, err)
	}
	v.CreatedAt = fromNanos(created)
	v.UpdatedAt = fromNanos(updated)
	return &v, nil
}

// PutView replaces the view wholesale, keeping its original creation time.
// A view older than the stored one (lower LastSeq) is ignored, so a replay
// raced by a writer in another process cannot roll the view back.
// CreatedAt and UpdatedAt on view are set from the store clock.
func (s *Store) PutView(ctx context.Context, view *types.View) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO views (key, state, last_seq, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			state = excluded.state,
			last_seq = excluded.last_seq,
			updated_at = excluded.updated_at
		WHERE excluded.last_seq >= views.last_seq`,
		view.Key, view.State, view.LastSeq, toNanos(now), toNanos(now),
	)
	if err != nil {
		return wrapDBError("put view "+view.Key, err)
	}
	view.UpdatedAt = now
	if view.CreatedAt.IsZero() {
		view.CreatedAt = now
	}
	return nil
}

// ListViews returns views whose key starts with prefix in the order they
// were first written.
func (s *Store) ListViews(ctx context.Context, prefix string) ([]*types.View, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, state, last_seq, created_at, updated_at FROM views
		WHERE substr(key, 1, ?) = ?
		ORDER BY rowid`, len(prefix), prefix,
	)
	if err != nil {
		return nil, wrapDBError("list views", err)
	}
	defer rows.Close()

	var views []*types.View
	for rows.Next() {
		var (
			v                types.View
			created, updated int64
		)
		if err := rows.Scan(&v.Key, &v.State, &v.LastSeq, &created, &updated); err != nil {
			return nil, wrapDBError("scan view row", err)
		}
		v.CreatedAt = fromNanos(created)
		v.UpdatedAt = fromNanos(updated)
		views = append(views, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("list views", err)
	}
	return views, nil
}
