// Package freshness implements the classification state machine for cache
// entries: given an entry and "now", decide whether it is fresh, still
// usable under a grace window, or expired — after first checking whether
// any of its tags were invalidated since it was created.
package freshness

import (
	"context"

	"github.com/arqcache/qcache/entry"
	"github.com/arqcache/qcache/tagpath"
)

// State is the result of classifying an entry against a point in time.
type State int

const (
	// Fresh means the entry is within its TTL and not tag-invalidated.
	Fresh State = iota
	// InGrace means the entry is past its TTL but within its grace
	// window, and not tag-invalidated.
	InGrace
	// Expired means the entry is past its grace window (or has none and
	// is past its TTL), or was invalidated by a tag write.
	Expired
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "FRESH"
	case InGrace:
		return "IN_GRACE"
	default:
		return "EXPIRED"
	}
}

// InvalidationLookup resolves the invalidation timestamp (ms) written for
// a serialized tag path, mirroring storage.Backend.GetTagInvalidation but
// kept backend-agnostic so freshness has no storage import.
type InvalidationLookup func(ctx context.Context, serializedTag string) (ms int64, found bool, err error)

// Result carries the classification plus whether tag invalidation was the
// cause, since the engine treats tag-invalidated entries as EXPIRED for
// correctness but still eligible as a "stale" fallback on loader failure.
type Result struct {
	State       State
	Invalidated bool
}

// Classify implements spec §4.4: for each tag on e, first check its exact
// sentinel, then every non-empty prefix; any timestamp >= e.CreatedAt
// invalidates the entry. Absent invalidation, the entry's own expiry and
// grace timestamps against now decide FRESH / IN_GRACE / EXPIRED.
//
// The boundary is intentional: a timestamp equal to CreatedAt invalidates
// (>=, not >), so same-millisecond writes are never silently missed.
func Classify(ctx context.Context, e entry.Entry, now int64, lookup InvalidationLookup) (Result, error) {
	invalidated, err := checkInvalidated(ctx, e, lookup)
	if err != nil {
		return Result{}, err
	}
	if invalidated {
		return Result{State: Expired, Invalidated: true}, nil
	}

	if e.ExpiresAt > now {
		return Result{State: Fresh}, nil
	}
	if e.GraceUntil != nil && *e.GraceUntil > now {
		return Result{State: InGrace}, nil
	}
	return Result{State: Expired}, nil
}

func checkInvalidated(ctx context.Context, e entry.Entry, lookup InvalidationLookup) (bool, error) {
	for _, tag := range e.Tags {
		hit, err := tagTimestampAtLeast(ctx, lookup, tag.Exact(), e.CreatedAt)
		if err != nil {
			return false, err
		}
		if hit {
			return true, nil
		}

		for _, prefix := range tag.Prefixes() {
			hit, err := tagTimestampAtLeast(ctx, lookup, prefix, e.CreatedAt)
			if err != nil {
				return false, err
			}
			if hit {
				return true, nil
			}
		}
	}
	return false, nil
}

func tagTimestampAtLeast(ctx context.Context, lookup InvalidationLookup, tag tagpath.Path, createdAt int64) (bool, error) {
	ts, found, err := lookup(ctx, tagpath.Serialize(tag))
	if err != nil {
		return false, err
	}
	return found && ts >= createdAt, nil
}
