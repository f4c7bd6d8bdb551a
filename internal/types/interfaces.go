package types

import "context"

// ScanOptions selects events from the log. Without Partitions the scan
// covers every partition in global sequence order.
type ScanOptions struct {
	Partitions  []string
	After       int64
	ExcludeKind string
	Limit       int
}

type EventStore interface {
	Append(ctx context.Context, partition, kind string, payload []byte) (int64, error)
	Scan(ctx context.Context, opts ScanOptions) ([]*Event, error)
}

type ViewStore interface {
	// GetView returns ErrNotFound when no view exists for key.
	GetView(ctx context.Context, key string) (*View, error)
	PutView(ctx context.Context, view *View) error
	// ListViews returns views whose key starts with prefix, oldest first.
	ListViews(ctx context.Context, prefix string) ([]*View, error)
}

// KVStore holds the relay cursor and correlation records.
type KVStore interface {
	// Get returns ErrNotFound when key is unset.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
