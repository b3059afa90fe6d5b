package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arqcache/qcache/entry"
	"github.com/arqcache/qcache/storage"
	"github.com/arqcache/qcache/tagpath"
)

func TestGetMissing(t *testing.T) {
	b, err := New(10)
	require.NoError(t, err)
	_, err = b.Get(context.Background(), "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSetThenGet(t *testing.T) {
	b, err := New(10)
	require.NoError(t, err)
	e, err := entry.New("v", []tagpath.Path{tagpath.New("a")}, 0, 1000, nil)
	require.NoError(t, err)
	require.NoError(t, b.Set(context.Background(), "k", e))

	got, err := b.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Value)
}

func TestDelete(t *testing.T) {
	b, _ := New(10)
	e, _ := entry.New("v", []tagpath.Path{tagpath.New("a")}, 0, 1000, nil)
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "k", e))
	require.NoError(t, b.Delete(ctx, "k"))
	_, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTagInvalidationOverwrite(t *testing.T) {
	b, _ := New(10)
	ctx := context.Background()
	require.NoError(t, b.SetTagInvalidation(ctx, "t", 100))
	require.NoError(t, b.SetTagInvalidation(ctx, "t", 200))
	ts, err := b.GetTagInvalidation(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(200), ts)
}

func TestClearRemovesEntriesAndTags(t *testing.T) {
	b, _ := New(10)
	ctx := context.Background()
	e, _ := entry.New("v", []tagpath.Path{tagpath.New("a")}, 0, 1000, nil)
	require.NoError(t, b.Set(ctx, "k", e))
	require.NoError(t, b.SetTagInvalidation(ctx, "t", 100))

	require.NoError(t, b.Clear(ctx))

	_, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = b.GetTagInvalidation(ctx, "t")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEvictionUnderCapacity(t *testing.T) {
	b, _ := New(1)
	ctx := context.Background()
	e, _ := entry.New("v1", []tagpath.Path{tagpath.New("a")}, 0, 1000, nil)
	require.NoError(t, b.Set(ctx, "k1", e))
	require.NoError(t, b.Set(ctx, "k2", e))
	assert.Equal(t, 1, b.Len())
}
