package objectstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandonfcohen1/gnarmap/internal/errs"
)

func TestLocalStorePutGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "dates.json", []byte(`["20231201"]`), "application/json"))

	got, err := store.Get(ctx, "dates.json")
	require.NoError(t, err)
	assert.Equal(t, `["20231201"]`, string(got))
}

func TestLocalStoreGetNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, "missing.json")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestLocalStoreList(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "snow_depth/c/0/0/0", []byte("a"), "application/octet-stream"))
	require.NoError(t, store.Put(ctx, "snow_depth/c/0/0/1", []byte("b"), "application/octet-stream"))
	require.NoError(t, store.Put(ctx, "snow_depth/c/1/0/0", []byte("c"), "application/octet-stream"))

	keys, err := store.List(ctx, "snow_depth/c/0")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"0/0", "0/1"}, keys)
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "dates.json", joinKey("", "dates.json"))
	assert.Equal(t, "snodas/dates.json", joinKey("snodas", "dates.json"))
	assert.Equal(t, "snodas/dates.json", joinKey("snodas/", "dates.json"))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/json", ContentTypeFor("dates.json"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor(filepath.Join("snow_depth", "c", "0", "0", "0")))
}
