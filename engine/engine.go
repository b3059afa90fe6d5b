// Package engine implements the cache engine (spec §4.5, C6): the
// orchestrator that ties the tag path algebra, entry records, the
// stampede coalescer, and the freshness evaluator to a pluggable storage
// backend. It exposes the named-query façade (Query/Invalidate/Clear/
// Disconnect) and the primitives façade (Get/Set/Del/Invalidate) from
// spec §4.6.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/arqcache/qcache/entry"
	"github.com/arqcache/qcache/freshness"
	"github.com/arqcache/qcache/internal/coalescer"
	"github.com/arqcache/qcache/internal/qlog"
	"github.com/arqcache/qcache/storage"
	"github.com/arqcache/qcache/tagpath"
)

// Loader produces a fresh value for a query on a cache miss. Loaders are
// opaque to the engine: a loader's failure is indistinguishable from any
// other E-Loader cause, and cancellation is not modeled — if the host
// cancels ctx, the loader is expected to return an error like any other.
type Loader func(ctx context.Context) (any, error)

// Engine is the cache orchestrator. The zero value is not usable;
// construct with New.
type Engine struct {
	backend  storage.Backend
	verifier storage.VerificationReporter

	prefix        string
	defaultTTL    time.Duration
	defaultGrace  *time.Duration
	verifyPercent float64

	clock func() int64
	rand  func() float64

	group *coalescer.Group

	bgWG sync.WaitGroup

	stats stats
}

// New constructs an Engine over backend, applying opts in order. Defaults
// match spec §4.5: prefix "qc", TTL 30s, grace disabled, verify_percent
// 0.1.
func New(backend storage.Backend, opts ...Option) (*Engine, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend must not be nil", ErrConfig)
	}
	e := &Engine{
		backend:       backend,
		prefix:        "qc",
		defaultTTL:    30 * time.Second,
		verifyPercent: 0.1,
		clock:         func() int64 { return time.Now().UnixMilli() },
		rand:          rand.Float64,
		group:         coalescer.New(),
	}
	if v, ok := backend.(storage.VerificationReporter); ok {
		e.verifier = v
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) cacheKey(key string) string {
	return e.prefix + ":" + key
}

// Query implements spec §4.5's query operation: coalesce on cacheKey,
// classify the stored entry against now, and either return it (FRESH),
// return it while scheduling a background refresh (IN_GRACE), or
// synchronously load, store, and return (EXPIRED/absent).
func (e *Engine) Query(ctx context.Context, key string, tags []tagpath.Path, loader Loader, opts ...QueryOption) (any, error) {
	cfg := queryConfig{ttl: e.defaultTTL, grace: e.defaultGrace}
	for _, opt := range opts {
		opt(&cfg)
	}

	cacheKey := e.cacheKey(key)
	v, err, shared := e.group.Do(cacheKey, func() (any, error) {
		return e.queryOnce(ctx, cacheKey, tags, loader, cfg)
	})
	if shared {
		e.stats.coalescedJoins.Add(1)
		qlog.Trace("coalescer", "joined in-flight query for %s", cacheKey)
	}
	return v, err
}

func (e *Engine) queryOnce(ctx context.Context, cacheKey string, tags []tagpath.Path, loader Loader, cfg queryConfig) (any, error) {
	prior, priorErr := e.backend.Get(ctx, cacheKey)
	hasPrior := priorErr == nil
	if priorErr != nil && !errors.Is(priorErr, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: get %s: %v", ErrBackend, cacheKey, priorErr)
	}

	if hasPrior {
		result, err := freshness.Classify(ctx, prior, e.clock(), e.invalidationLookup)
		if err != nil {
			return nil, fmt.Errorf("%w: classify %s: %v", ErrBackend, cacheKey, err)
		}
		switch result.State {
		case freshness.Fresh:
			e.stats.hits.Add(1)
			if !result.Invalidated && e.verifier != nil && e.rand() < e.verifyPercent {
				e.spawnVerification(cacheKey, loader, prior)
			}
			return prior.Value, nil
		case freshness.InGrace:
			e.stats.staleServed.Add(1)
			e.spawnRefresh(cacheKey, tags, loader, cfg)
			return prior.Value, nil
		}
	}

	e.stats.misses.Add(1)
	v, err := loader(ctx)
	if err != nil {
		if hasPrior && prior.GraceUntil != nil && *prior.GraceUntil > e.clock() {
			e.stats.recoveredOnGrace.Add(1)
			qlog.Warn("loader for %s failed, serving grace-held value: %v", cacheKey, err)
			return prior.Value, nil
		}
		e.stats.loaderErrors.Add(1)
		return nil, err
	}

	if err := e.store(ctx, cacheKey, v, tags, cfg); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) store(ctx context.Context, cacheKey string, v any, tags []tagpath.Path, cfg queryConfig) error {
	now := e.clock()
	expiresAt := now + cfg.ttl.Milliseconds()
	var graceUntil *int64
	if cfg.grace != nil {
		g := expiresAt + cfg.grace.Milliseconds()
		graceUntil = &g
	}
	ent, err := entry.New(v, tags, now, expiresAt, graceUntil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := e.backend.Set(ctx, cacheKey, ent); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrBackend, cacheKey, err)
	}
	return nil
}

func (e *Engine) invalidationLookup(ctx context.Context, serializedTag string) (int64, bool, error) {
	ts, err := e.backend.GetTagInvalidation(ctx, serializedTag)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return ts, true, nil
}

// Invalidate writes the current time against each tag's serialized key
// (spec §4.5). When exact is true, each tag's exact sentinel is written
// instead, confining the invalidation to entries tagged with exactly
// that path (invariant I4). Every tag is attempted; a failure on one
// does not prevent attempting the rest, and all failures are joined.
func (e *Engine) Invalidate(ctx context.Context, tags []tagpath.Path, exact bool) error {
	now := e.clock()
	var errs []error
	for _, tag := range tags {
		target := tag
		if exact {
			target = tag.Exact()
		}
		if err := e.backend.SetTagInvalidation(ctx, tagpath.Serialize(target), now); err != nil {
			errs = append(errs, fmt.Errorf("%w: invalidate %s: %v", ErrBackend, target, err))
		}
	}
	return errors.Join(errs...)
}

// Clear delegates to the backend, purging every entry and tag timestamp
// under the engine's namespace.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.backend.Clear(ctx); err != nil {
		return fmt.Errorf("%w: clear: %v", ErrBackend, err)
	}
	return nil
}

// Disconnect drains in-flight background refresh and verification
// goroutines (bounded by ctx), then delegates to the backend. This is
// stricter than the source spec's bare passthrough: draining first keeps
// qcache from leaking goroutines past the caller's own shutdown.
func (e *Engine) Disconnect(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.bgWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		qlog.Warn("disconnect: background work still draining at %v", ctx.Err())
	}
	if err := e.backend.Disconnect(ctx); err != nil {
		return fmt.Errorf("%w: disconnect: %v", ErrBackend, err)
	}
	return nil
}

// queryConfig holds the per-call overrides for TTL and grace.
type queryConfig struct {
	ttl   time.Duration
	grace *time.Duration
}

// QueryOption overrides the engine's default TTL/grace for a single
// Query call.
type QueryOption func(*queryConfig)

// WithTTL overrides the freshness window for one Query call.
func WithTTL(d time.Duration) QueryOption {
	return func(c *queryConfig) { c.ttl = d }
}

// WithGrace overrides the grace window for one Query call.
func WithGrace(d time.Duration) QueryOption {
	return func(c *queryConfig) { c.grace = &d }
}

// WithNoGrace disables grace for one Query call, overriding the engine's
// default grace.
func WithNoGrace() QueryOption {
	return func(c *queryConfig) { c.grace = nil }
}
