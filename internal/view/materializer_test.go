package view

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/foreman/internal/state"
	"github.com/user/foreman/internal/types"
)

func openStore(t *testing.T) *state.Store {
	t.Helper()
	store, err := state.Open(context.Background(), filepath.Join(t.TempDir(), "foreman.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func appendEvent(t *testing.T, store *state.Store, partition, kind string, payload any) int64 {
	t.Helper()
	b, err := types.Encode(payload)
	require.NoError(t, err)
	seq, err := store.Append(context.Background(), partition, kind, b)
	require.NoError(t, err)
	return seq
}

func TestMaterializeEmptyPartition(t *testing.T) {
	store := openStore(t)
	m := NewMaterializer(store, store)

	v, err := m.Materialize(context.Background(), "P-9")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = store.GetView(context.Background(), "session:P-9")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestMaterializeWritesView(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	m := NewMaterializer(store, store)

	appendEvent(t, store, "P-1", types.EventSessionCreated, types.SessionCreated{
		ID:      types.Ptr(types.SessionID("P-1")),
		Project: types.Ptr(types.ProjectID("P")),
		Status:  types.Ptr(types.StatusReady),
	})
	last := appendEvent(t, store, "P-1", types.EventSessionUpdated, types.SessionUpdated{
		Status: types.Ptr(types.StatusInProgress),
	})
	// Events in other partitions are not folded in.
	appendEvent(t, store, "P-2", types.EventSessionCreated, types.SessionCreated{
		Status: types.Ptr(types.StatusDone),
	})

	v, err := m.Materialize(ctx, "P-1")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "session:P-1", v.Key)
	assert.Equal(t, last, v.LastSeq)

	var s types.Session
	cached, err := Load(ctx, store, types.KindSession, "P-1", &s)
	require.NoError(t, err)
	assert.Equal(t, last, cached.LastSeq)
	assert.Equal(t, types.StatusInProgress, s.Status)
	assert.Equal(t, types.ProjectID("P"), s.Project)
}

func TestMaterializeColdReplayIsByteIdentical(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	appendEvent(t, store, "P", types.EventProjectCreated, types.ProjectCreated{
		ID:   types.Ptr(types.ProjectID("P")),
		Name: types.Ptr("Payments"),
	})
	appendEvent(t, store, "P", types.EventProjectUpdated, types.ProjectUpdated{
		Repository: types.Ptr("/src/payments"),
	})

	first, err := NewMaterializer(store, store).Materialize(ctx, "P")
	require.NoError(t, err)

	events, err := store.Scan(ctx, types.ScanOptions{Partitions: []string{"P"}})
	require.NoError(t, err)
	folded, err := Fold(events)
	require.NoError(t, err)
	second, err := types.Encode(folded.State)
	require.NoError(t, err)

	again, err := NewMaterializer(store, store).Materialize(ctx, "P")
	require.NoError(t, err)

	assert.Equal(t, first.State, second)
	assert.Equal(t, first.State, again.State)
}
