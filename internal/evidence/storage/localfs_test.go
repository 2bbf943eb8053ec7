package storage_test

import (
	"context"
	"testing"

	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFSStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalFSStore(t.TempDir())
	require.NoError(t, err)

	payload := []byte(`{"a":1}`)
	require.NoError(t, store.Put(ctx, "ledger/2025/01/02/abc.json", payload))

	got, err := store.Get(ctx, "ledger/2025/01/02/abc.json")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, store.Delete(ctx, "ledger/2025/01/02/abc.json"))

	_, err = store.Get(ctx, "ledger/2025/01/02/abc.json")
	assert.True(t, storage.IsNotFound(err))
	assert.True(t, storage.IsNotFound(store.Delete(ctx, "ledger/2025/01/02/abc.json")))
}

func TestLocalFSStore_ListPrefixAndMaxKeys(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalFSStore(t.TempDir())
	require.NoError(t, err)

	for _, k := range []string{
		"ledger/2025/01/02/c.json",
		"ledger/2025/01/02/a.json",
		"ledger/2025/01/03/b.json",
		"doc-ledger/2025/01/02/d.json",
	} {
		require.NoError(t, store.Put(ctx, k, []byte("{}")))
	}

	objs, err := store.List(ctx, "ledger/2025/01/02/", 0)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "ledger/2025/01/02/a.json", objs[0].Key)
	assert.Equal(t, "ledger/2025/01/02/c.json", objs[1].Key)
	assert.EqualValues(t, 2, objs[0].Size)

	objs, err = store.List(ctx, "ledger/2025/01/0", 0)
	require.NoError(t, err)
	assert.Len(t, objs, 3)

	objs, err = store.List(ctx, "ledger/", 1)
	require.NoError(t, err)
	assert.Len(t, objs, 1)

	objs, err = store.List(ctx, "missing/", 0)
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestLocalFSStore_RejectsInvalidKeys(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalFSStore(t.TempDir())
	require.NoError(t, err)

	for _, k := range []string{"", "/abs.json", "a/../../etc/passwd", "a//b", "dir/"} {
		err := store.Put(ctx, k, []byte("x"))
		assert.ErrorIs(t, err, storage.ErrInvalidKey, k)
	}
}

func TestProbe(t *testing.T) {
	store, err := storage.NewLocalFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, storage.Probe(context.Background(), store))

	objs, err := store.List(context.Background(), storage.PrefixHealth+"/", 0)
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestDeleteManyFallsBackToSingleDeletes(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "pending/a.json", []byte("{}")))

	failed, err := storage.DeleteMany(ctx, store, []string{"pending/a.json", "pending/missing.json"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.True(t, storage.IsNotFound(failed["pending/missing.json"]))
}
