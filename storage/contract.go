// Package storage defines the contract qcache's engine depends on for
// persistence. The engine never locks around a Backend — implementations
// are assumed thread-safe — and never mutates an entry in place; every
// write is a whole-entry replacement.
package storage

import (
	"context"
	"errors"

	"github.com/arqcache/qcache/entry"
)

// ErrNotFound is returned by Get and GetTagInvalidation when the key (or
// tag) has no stored value. It is a sentinel, not an E-Backend failure.
var ErrNotFound = errors.New("storage: not found")

// Backend is the storage contract from the specification's external
// interfaces section. All methods are fallible; callers distinguish
// ErrNotFound (absence) from any other error (an E-Backend failure).
type Backend interface {
	// Get returns the entry stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (entry.Entry, error)

	// Set stores e at key. Implementations may use e.GraceUntil (or
	// e.ExpiresAt if grace is absent) to set a backend-native TTL so
	// expired entries drop out passively; this is an optimization, not
	// a correctness requirement — the engine always classifies freshness
	// itself on read.
	Set(ctx context.Context, key string, e entry.Entry) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// GetTagInvalidation returns the invalidation timestamp (ms) written
	// for the given serialized tag, or ErrNotFound if never written.
	GetTagInvalidation(ctx context.Context, serializedTag string) (int64, error)

	// SetTagInvalidation records that serializedTag was invalidated at
	// ms. A later write for the same tag overwrites an earlier one.
	SetTagInvalidation(ctx context.Context, serializedTag string, ms int64) error

	// Clear removes every entry and every tag invalidation timestamp
	// under the backend's namespace.
	Clear(ctx context.Context) error

	// Disconnect releases any resources (connections, file handles) held
	// by the backend. The engine calls this from each Engine.Disconnect.
	Disconnect(ctx context.Context) error
}

// VerificationReport is what the engine hands a backend that opts into
// sampled verification reporting (spec §4.7, §6).
type VerificationReport struct {
	Key        string
	IsStale    bool
	CachedHash string
	FreshHash  string
	Timestamp  int64
}

// VerificationReporter is an optional capability: a Backend that also
// implements it is probed once at engine construction (not via dynamic
// method lookup) and, if present, receives sampled verification results.
// Failures from ReportVerification are always swallowed by the engine.
type VerificationReporter interface {
	ReportVerification(ctx context.Context, report VerificationReport) error
}
