// Package entry defines the cache entry record: the value type stored by
// every backend. Entries carry no behavior beyond construction and field
// validation — classification lives in the freshness package, persistence
// lives in a backend.
package entry

import (
	"errors"
	"fmt"

	"github.com/arqcache/qcache/tagpath"
)

// ErrInvalid is returned by New when the constructed entry would violate
// the entry invariant.
var ErrInvalid = errors.New("entry: invalid")

// Entry is a record holding an opaquely-stored value, the set of tag
// paths it depends on, and the three timestamps that govern its
// lifecycle. All timestamps are monotonic-wall-clock milliseconds.
//
// Invariant: CreatedAt <= ExpiresAt, and when GraceUntil is non-nil,
// ExpiresAt <= *GraceUntil.
type Entry struct {
	Value      any
	Tags       []tagpath.Path
	CreatedAt  int64
	ExpiresAt  int64
	GraceUntil *int64
}

// New validates and constructs an Entry. Tags must be non-empty; the three
// timestamps must satisfy the entry invariant.
func New(value any, tags []tagpath.Path, createdAt, expiresAt int64, graceUntil *int64) (Entry, error) {
	e := Entry{
		Value:      value,
		Tags:       tags,
		CreatedAt:  createdAt,
		ExpiresAt:  expiresAt,
		GraceUntil: graceUntil,
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Validate checks the entry invariant without constructing a new value.
func (e Entry) Validate() error {
	if len(e.Tags) == 0 {
		return fmt.Errorf("%w: entry must have at least one tag", ErrInvalid)
	}
	if e.CreatedAt > e.ExpiresAt {
		return fmt.Errorf("%w: created_at (%d) after expires_at (%d)", ErrInvalid, e.CreatedAt, e.ExpiresAt)
	}
	if e.GraceUntil != nil && e.ExpiresAt > *e.GraceUntil {
		return fmt.Errorf("%w: expires_at (%d) after grace_until (%d)", ErrInvalid, e.ExpiresAt, *e.GraceUntil)
	}
	return nil
}

// HasGrace reports whether the entry carries a grace window at all.
func (e Entry) HasGrace() bool {
	return e.GraceUntil != nil
}
