package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data, err := store.Load(ctx, KeyMessages)
	require.NoError(t, err)
	assert.Nil(t, data, "absent key must read as empty, not error")

	require.NoError(t, store.Save(ctx, KeyMessages, []byte(`[1,2]`)))
	data, err = store.Load(ctx, KeyMessages)
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(data))

	require.NoError(t, store.Delete(ctx, KeyMessages))
	data, err = store.Load(ctx, KeyMessages)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	data, err := store.Load(ctx, KeyRunHistory)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, store.Save(ctx, KeyRunHistory, []byte(`[]`)))
	data, err = store.Load(ctx, KeyRunHistory)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))

	require.NoError(t, store.Delete(ctx, KeyRunHistory))
	require.NoError(t, store.Delete(ctx, KeyRunHistory), "deleting an absent key is not an error")
}

func TestNamespacedIsolatesSessions(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryStore()

	first := Namespaced(backing, "alpha")
	second := Namespaced(backing, "beta")

	require.NoError(t, first.Save(ctx, KeyMessages, []byte(`["a"]`)))

	data, err := second.Load(ctx, KeyMessages)
	require.NoError(t, err)
	assert.Nil(t, data, "sessions must not see each other's keys")

	data, err = first.Load(ctx, KeyMessages)
	require.NoError(t, err)
	assert.Equal(t, `["a"]`, string(data))
}
