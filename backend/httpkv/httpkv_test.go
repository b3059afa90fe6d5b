package httpkv_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arqcache/qcache/backend/httpkv"
	"github.com/arqcache/qcache/backend/memory"
	"github.com/arqcache/qcache/entry"
	"github.com/arqcache/qcache/storage"
	"github.com/arqcache/qcache/tagpath"
)

func newTestPair(t *testing.T) (*httpkv.Client, *memory.Backend) {
	t.Helper()
	mem, err := memory.New(100)
	require.NoError(t, err)
	srv := httpkv.NewServer(mem)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return httpkv.NewClient(ts.URL, ts.Client()), mem
}

func TestClientGetMissing(t *testing.T) {
	c, _ := newTestPair(t)
	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClientSetThenGetRoundTrips(t *testing.T) {
	c, _ := newTestPair(t)
	ctx := context.Background()

	e, err := entry.New(map[string]any{"n": float64(1)}, []tagpath.Path{tagpath.New("a", "b")}, 0, 60000, nil)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "k", e))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(1)}, got.Value)
	require.Len(t, got.Tags, 1)
	assert.True(t, got.Tags[0].Equal(tagpath.New("a", "b")))
}

func TestClientDelete(t *testing.T) {
	c, _ := newTestPair(t)
	ctx := context.Background()
	e, _ := entry.New("v", []tagpath.Path{tagpath.New("a")}, 0, 1000, nil)
	require.NoError(t, c.Set(ctx, "k", e))
	require.NoError(t, c.Delete(ctx, "k"))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClientTagInvalidationRoundTrips(t *testing.T) {
	c, _ := newTestPair(t)
	ctx := context.Background()

	_, err := c.GetTagInvalidation(ctx, "t")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, c.SetTagInvalidation(ctx, "t", 500))
	ts, err := c.GetTagInvalidation(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(500), ts)
}

func TestClientClear(t *testing.T) {
	c, _ := newTestPair(t)
	ctx := context.Background()
	e, _ := entry.New("v", []tagpath.Path{tagpath.New("a")}, 0, 1000, nil)
	require.NoError(t, c.Set(ctx, "k", e))
	require.NoError(t, c.SetTagInvalidation(ctx, "t", 1))

	require.NoError(t, c.Clear(ctx))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = c.GetTagInvalidation(ctx, "t")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClientReportVerificationSucceedsWithoutUnderlyingReporter(t *testing.T) {
	c, _ := newTestPair(t)
	// memory.Backend does not implement storage.VerificationReporter, so
	// the server's handler takes the no-reporter branch and still
	// returns success — verification reports are best-effort.
	err := c.ReportVerification(context.Background(), storage.VerificationReport{
		Key: "k", IsStale: true, CachedHash: "a", FreshHash: "b", Timestamp: 1,
	})
	require.NoError(t, err)
}
