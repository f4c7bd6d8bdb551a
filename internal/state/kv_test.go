package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/foreman/internal/types"
)

func TestKVStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "relay:cursor")
	require.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, store.Set(ctx, "relay:cursor", []byte("7")))
	require.NoError(t, store.Set(ctx, "relay:cursor", []byte("9")))

	v, err := store.Get(ctx, "relay:cursor")
	require.NoError(t, err)
	assert.Equal(t, []byte("9"), v)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	path := dir + "/foreman.db"

	store, err := Open(ctx, path)
	require.NoError(t, err)
	seq, err := store.Append(ctx, "P", types.EventProjectCreated, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	events, err := store.Scan(ctx, types.ScanOptions{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, seq, events[0].Seq)
}
