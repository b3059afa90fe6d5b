package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arqcache/qcache/backend/memory"
	"github.com/arqcache/qcache/engine"
	"github.com/arqcache/qcache/tagpath"
)

func newEngine(t *testing.T, clock func() int64, opts ...engine.Option) *engine.Engine {
	t.Helper()
	be, err := memory.New(1000)
	require.NoError(t, err)
	allOpts := append([]engine.Option{engine.WithClock(clock), engine.WithRand(func() float64 { return 1 })}, opts...)
	e, err := engine.New(be, allOpts...)
	require.NoError(t, err)
	return e
}

func clockAt(ms *int64) func() int64 {
	return func() int64 { return atomic.LoadInt64(ms) }
}

// Scenario 1: cache hit.
func TestScenarioCacheHit(t *testing.T) {
	now := int64(0)
	e := newEngine(t, clockAt(&now))
	ctx := context.Background()
	var calls int32
	loader := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return map[string]string{"id": "1", "name": "Alice"}, nil
	}

	v1, err := e.Query(ctx, "getUser", []tagpath.Path{tagpath.New("user", "1")}, loader, engine.WithTTL(60*time.Second))
	require.NoError(t, err)

	now = 1000
	v2, err := e.Query(ctx, "getUser", []tagpath.Path{tagpath.New("user", "1")}, loader, engine.WithTTL(60*time.Second))
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// Scenario 2: hierarchical invalidation re-invokes the loader.
func TestScenarioHierarchicalInvalidation(t *testing.T) {
	now := int64(0)
	e := newEngine(t, clockAt(&now))
	ctx := context.Background()

	gen := int32(0)
	loader := func(context.Context) (any, error) {
		n := atomic.AddInt32(&gen, 1)
		if n == 1 {
			return "V1", nil
		}
		return "V2", nil
	}

	v1, err := e.Query(ctx, "gp", []tagpath.Path{tagpath.New("posts", "1", "comments")}, loader, engine.WithTTL(60*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "V1", v1)

	now = 100
	require.NoError(t, e.Invalidate(ctx, []tagpath.Path{tagpath.New("posts", "1")}, false))

	now = 200
	v2, err := e.Query(ctx, "gp", []tagpath.Path{tagpath.New("posts", "1", "comments")}, loader, engine.WithTTL(60*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "V2", v2)
}

// Scenario 3: exact invalidation does not cascade.
func TestScenarioExactInvalidationDoesNotCascade(t *testing.T) {
	now := int64(0)
	e := newEngine(t, clockAt(&now))
	ctx := context.Background()

	gen := int32(0)
	loader := func(context.Context) (any, error) {
		n := atomic.AddInt32(&gen, 1)
		if n == 1 {
			return "V1", nil
		}
		return "V2", nil
	}

	v1, err := e.Query(ctx, "gp", []tagpath.Path{tagpath.New("posts", "1", "comments")}, loader, engine.WithTTL(60*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "V1", v1)

	now = 100
	require.NoError(t, e.Invalidate(ctx, []tagpath.Path{tagpath.New("posts", "1")}, true))

	now = 200
	v2, err := e.Query(ctx, "gp", []tagpath.Path{tagpath.New("posts", "1", "comments")}, loader, engine.WithTTL(60*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "V1", v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&gen))
}

// Scenario 4: stampede protection — concurrent queries for the same key
// invoke the loader exactly once.
func TestScenarioStampedeProtection(t *testing.T) {
	now := int64(0)
	e := newEngine(t, clockAt(&now))
	ctx := context.Background()

	var n int32
	loader := func(context.Context) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return map[string]int{"count": int(atomic.AddInt32(&n, 1))}, nil
	}

	const concurrency = 3
	var wg sync.WaitGroup
	results := make([]any, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := e.Query(ctx, "k", []tagpath.Path{tagpath.New("k")}, loader)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&n))
	for _, v := range results {
		assert.Equal(t, map[string]int{"count": 1}, v)
	}
}

// Scenario 5: stale-while-revalidate.
func TestScenarioStaleWhileRevalidate(t *testing.T) {
	now := int64(0)
	e := newEngine(t, clockAt(&now))
	ctx := context.Background()

	var n int32
	loader := func(context.Context) (any, error) {
		return map[string]int{"count": int(atomic.AddInt32(&n, 1))}, nil
	}

	_, err := e.Query(ctx, "k", []tagpath.Path{tagpath.New("k")}, loader,
		engine.WithTTL(time.Millisecond), engine.WithGrace(10*time.Second))
	require.NoError(t, err)

	now = 10
	v, err := e.Query(ctx, "k", []tagpath.Path{tagpath.New("k")}, loader,
		engine.WithTTL(time.Millisecond), engine.WithGrace(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"count": 1}, v)

	require.Eventually(t, func() bool {
		stored, ok, gerr := e.Get(ctx, "k")
		return gerr == nil && ok && stored.(map[string]int)["count"] == 2
	}, time.Second, 5*time.Millisecond, "background refresh never completed storing")

	now = 60
	v2, err := e.Query(ctx, "k", []tagpath.Path{tagpath.New("k")}, loader,
		engine.WithTTL(time.Millisecond), engine.WithGrace(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"count": 2}, v2)
}

// Scenario 6: loader failure with grace still available returns the
// stale value silently; once grace has also elapsed, the error surfaces.
func TestScenarioErrorWithGrace(t *testing.T) {
	now := int64(0)
	e := newEngine(t, clockAt(&now))
	ctx := context.Background()

	var failing atomic.Bool
	wantErr := errors.New("loader exploded")
	loader := func(context.Context) (any, error) {
		if failing.Load() {
			return nil, wantErr
		}
		return "V", nil
	}

	_, err := e.Query(ctx, "k", []tagpath.Path{tagpath.New("k")}, loader,
		engine.WithTTL(time.Millisecond), engine.WithGrace(10*time.Second))
	require.NoError(t, err)

	now = 5
	require.NoError(t, e.Invalidate(ctx, []tagpath.Path{tagpath.New("k")}, false))
	failing.Store(true)

	now = 10
	v, err := e.Query(ctx, "k", []tagpath.Path{tagpath.New("k")}, loader,
		engine.WithTTL(time.Millisecond), engine.WithGrace(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "V", v)

	now = 20000
	_, err = e.Query(ctx, "k", []tagpath.Path{tagpath.New("k")}, loader,
		engine.WithTTL(time.Millisecond), engine.WithGrace(10*time.Second))
	assert.ErrorIs(t, err, wantErr)
}

func TestGetSetDelPrimitives(t *testing.T) {
	now := int64(0)
	e := newEngine(t, clockAt(&now))
	ctx := context.Background()

	_, ok, err := e.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, e.Set(ctx, "k", "v", []tagpath.Path{tagpath.New("a")}, engine.WithTTL(time.Minute)))

	v, ok, err := e.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, e.Del(ctx, "k"))
	_, ok, err = e.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetDoesNotDeleteExpiredEntry(t *testing.T) {
	now := int64(0)
	e := newEngine(t, clockAt(&now))
	ctx := context.Background()
	require.NoError(t, e.Set(ctx, "k", "v", []tagpath.Path{tagpath.New("a")}, engine.WithTTL(time.Millisecond)))

	now = 1000
	_, ok, err := e.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// The entry is still stored: with the clock back inside its TTL, Get
	// finds it again.
	now = 0
	v, ok, err := e.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestInvalidateIsIdempotent(t *testing.T) {
	now := int64(100)
	e := newEngine(t, clockAt(&now))
	ctx := context.Background()

	tags := []tagpath.Path{tagpath.New("a", "b")}
	require.NoError(t, e.Invalidate(ctx, tags, false))
	require.NoError(t, e.Invalidate(ctx, tags, false))

	// Observable effect: an entry created in the same millisecond as the
	// invalidations (timestamp equal to its created_at) is non-fresh.
	require.NoError(t, e.Set(ctx, "k", "v", []tagpath.Path{tagpath.New("a", "b", "c")}, engine.WithTTL(time.Minute)))
	_, ok, err := e.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisconnectDrainsBackground(t *testing.T) {
	now := int64(0)
	e := newEngine(t, clockAt(&now))
	ctx := context.Background()

	var n int32
	loader := func(context.Context) (any, error) {
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&n, 1)
		return "v", nil
	}
	_, err := e.Query(ctx, "k", []tagpath.Path{tagpath.New("k")}, loader,
		engine.WithTTL(time.Millisecond), engine.WithGrace(10*time.Second))
	require.NoError(t, err)

	now = 10
	_, err = e.Query(ctx, "k", []tagpath.Path{tagpath.New("k")}, loader,
		engine.WithTTL(time.Millisecond), engine.WithGrace(10*time.Second))
	require.NoError(t, err)

	dctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Disconnect(dctx))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&n), int32(2))
}
