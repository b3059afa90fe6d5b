package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/arqcache/qcache/freshness"
	"github.com/arqcache/qcache/storage"
	"github.com/arqcache/qcache/tagpath"
)

// Get implements the primitives façade's get (spec §4.6): it shares the
// freshness evaluator and invalidation semantics with Query but bypasses
// the coalescer and never calls a loader. It returns the stored value iff
// the entry classifies as FRESH or IN_GRACE and is not tag-invalidated;
// otherwise ok is false. A non-fresh entry is never deleted here —
// deletion remains the backend's business.
func (e *Engine) Get(ctx context.Context, key string) (value any, ok bool, err error) {
	cacheKey := e.cacheKey(key)
	ent, err := e.backend.Get(ctx, cacheKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrBackend, cacheKey, err)
	}

	result, err := freshness.Classify(ctx, ent, e.clock(), e.invalidationLookup)
	if err != nil {
		return nil, false, fmt.Errorf("%w: classify %s: %v", ErrBackend, cacheKey, err)
	}
	if result.Invalidated || result.State == freshness.Expired {
		return nil, false, nil
	}
	return ent.Value, true, nil
}

// Set implements the primitives façade's set: an unconditional write,
// bypassing the coalescer and any loader.
func (e *Engine) Set(ctx context.Context, key string, value any, tags []tagpath.Path, opts ...QueryOption) error {
	cfg := queryConfig{ttl: e.defaultTTL, grace: e.defaultGrace}
	for _, opt := range opts {
		opt(&cfg)
	}
	return e.store(ctx, e.cacheKey(key), value, tags, cfg)
}

// Del implements the primitives façade's del: an unconditional delete.
func (e *Engine) Del(ctx context.Context, key string) error {
	if err := e.backend.Delete(ctx, e.cacheKey(key)); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrBackend, key, err)
	}
	return nil
}
