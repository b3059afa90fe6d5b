// Package coalescer implements the stampede coalescer (spec §4.3): a
// process-local map from cache key to the single in-progress load for
// that key. It is a thin, typed wrapper around golang.org/x/sync's
// singleflight.Group, which already provides exactly the register-or-join
// /release-unconditionally contract the specification calls for.
package coalescer

import "golang.org/x/sync/singleflight"

// Group coalesces concurrent loads that share a cache key. The zero value
// is not usable; construct with New.
type Group struct {
	sf singleflight.Group
}

// New returns a ready-to-use Group.
func New() *Group {
	return &Group{}
}

// Do registers fn as the in-progress load for key if none exists, or
// joins the existing one. Every caller — the one that registered and
// every joiner — receives the same value and the same error. shared
// reports whether the caller joined rather than triggered the call.
// Release happens unconditionally before Do returns, on both the success
// and failure path, so the next caller re-enters fresh.
func (g *Group) Do(key string, fn func() (any, error)) (value any, err error, shared bool) {
	// singleflight's own shared flag is also true for the triggering
	// caller once anyone joined, so track who actually ran fn.
	triggered := false
	value, err, _ = g.sf.Do(key, func() (any, error) {
		triggered = true
		return fn()
	})
	return value, err, !triggered
}

// Forget removes key from the in-progress set without waiting for it,
// so the next Do call for key starts a fresh load. Not used by the
// engine's synchronous path but exposed for callers building custom
// cancellation above the coalescer.
func (g *Group) Forget(key string) {
	g.sf.Forget(key)
}
