// Package memory implements the storage contract (storage.Backend) as a
// process-local cache over github.com/hashicorp/golang-lru/v2, the LRU
// implementation the erigon node uses for its own in-memory caches. Tag
// invalidation timestamps are kept in a plain mutex-guarded map: per
// spec §3 that set may grow without bound, and the engine never requires
// a backend to age it.
package memory

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arqcache/qcache/entry"
	"github.com/arqcache/qcache/storage"
)

// Backend is an in-process storage.Backend. The zero value is not usable;
// construct with New.
type Backend struct {
	entries *lru.Cache[string, entry.Entry]

	mu   sync.RWMutex
	tags map[string]int64
}

// New creates a Backend whose entry cache holds at most size entries,
// evicting least-recently-used entries once full. Eviction here is a
// capacity bound, not a correctness mechanism — the engine always
// classifies freshness itself, so an evicted-but-still-fresh entry simply
// becomes a cache miss rather than a correctness problem.
func New(size int) (*Backend, error) {
	c, err := lru.New[string, entry.Entry](size)
	if err != nil {
		return nil, err
	}
	return &Backend{entries: c, tags: make(map[string]int64)}, nil
}

var _ storage.Backend = (*Backend)(nil)

// Get implements storage.Backend.
func (b *Backend) Get(_ context.Context, key string) (entry.Entry, error) {
	e, ok := b.entries.Get(key)
	if !ok {
		return entry.Entry{}, storage.ErrNotFound
	}
	return e, nil
}

// Set implements storage.Backend.
func (b *Backend) Set(_ context.Context, key string, e entry.Entry) error {
	b.entries.Add(key, e)
	return nil
}

// Delete implements storage.Backend.
func (b *Backend) Delete(_ context.Context, key string) error {
	b.entries.Remove(key)
	return nil
}

// GetTagInvalidation implements storage.Backend.
func (b *Backend) GetTagInvalidation(_ context.Context, serializedTag string) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ts, ok := b.tags[serializedTag]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return ts, nil
}

// SetTagInvalidation implements storage.Backend. A later write for the
// same tag overwrites an earlier one, per spec §3.
func (b *Backend) SetTagInvalidation(_ context.Context, serializedTag string, ms int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tags[serializedTag] = ms
	return nil
}

// Clear implements storage.Backend, removing every entry and every tag
// invalidation timestamp.
func (b *Backend) Clear(_ context.Context) error {
	b.entries.Purge()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tags = make(map[string]int64)
	return nil
}

// Disconnect implements storage.Backend. The in-process backend holds no
// external resources, so this is a no-op.
func (b *Backend) Disconnect(_ context.Context) error {
	return nil
}

// Len reports the number of entries currently cached, for tests and
// diagnostics.
func (b *Backend) Len() int {
	return b.entries.Len()
}
