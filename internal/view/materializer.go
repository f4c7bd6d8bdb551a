// Package view folds event partitions into entity states and caches the
// result in the view store.
package view

import (
	"context"
	"fmt"

	"github.com/user/foreman/internal/types"
)

// Materializer replays a partition and overwrites its cached view.
type Materializer struct {
	events types.EventStore
	views  types.ViewStore
}

func NewMaterializer(events types.EventStore, views types.ViewStore) *Materializer {
	return &Materializer{events: events, views: views}
}

// Materialize replays every event of the partition and replaces the view.
// It returns nil, nil when the partition has no events.
func (m *Materializer) Materialize(ctx context.Context, partition string) (*types.View, error) {
	events, err := m.events.Scan(ctx, types.ScanOptions{Partitions: []string{partition}})
	if err != nil {
		return nil, fmt.Errorf("scan partition %s: %w", partition, err)
	}
	folded, err := Fold(events)
	if err != nil {
		return nil, fmt.Errorf("fold partition %s: %w", partition, err)
	}
	if folded == nil {
		return nil, nil
	}

	state, err := types.Encode(folded.State)
	if err != nil {
		return nil, err
	}
	v := &types.View{
		Key:     types.ViewKey(folded.Kind, partition),
		State:   state,
		LastSeq: folded.LastSeq,
	}
	if err := m.views.PutView(ctx, v); err != nil {
		return nil, fmt.Errorf("put view %s: %w", v.Key, err)
	}
	return v, nil
}

// Load reads the cached view for an entity and decodes its state into out.
// It returns types.ErrNotFound when no view exists.
func Load(ctx context.Context, views types.ViewStore, kind types.EntityKind, entityID string, out any) (*types.View, error) {
	v, err := views.GetView(ctx, types.ViewKey(kind, entityID))
	if err != nil {
		return nil, err
	}
	if err := types.Decode(v.State, out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", v.Key, err)
	}
	return v, nil
}
