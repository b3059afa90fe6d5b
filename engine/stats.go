package engine

import "sync/atomic"

// stats holds the engine's cumulative counters. Not named in the source
// specification, but carried the way the teacher's CachedRepository and
// BoundedEntityCache track cacheHits/cacheMisses — a supplemented,
// non-semantic feature (SPEC_FULL §7).
type stats struct {
	hits              atomic.Uint64
	misses            atomic.Uint64
	staleServed       atomic.Uint64
	coalescedJoins    atomic.Uint64
	loaderErrors      atomic.Uint64
	recoveredOnGrace  atomic.Uint64
	verificationStale atomic.Uint64
}

// Stats is a point-in-time snapshot of an Engine's counters.
type Stats struct {
	Hits              uint64
	Misses            uint64
	StaleServed       uint64
	CoalescedJoins    uint64
	LoaderErrors      uint64
	RecoveredOnGrace  uint64
	VerificationStale uint64
}

// Stats returns a snapshot of the engine's cumulative counters. Reads are
// independent atomic loads, so a snapshot taken under concurrent traffic
// may not be perfectly consistent across fields — acceptable for
// observability, not relied on for correctness anywhere in the engine.
func (e *Engine) Stats() Stats {
	return Stats{
		Hits:              e.stats.hits.Load(),
		Misses:            e.stats.misses.Load(),
		StaleServed:       e.stats.staleServed.Load(),
		CoalescedJoins:    e.stats.coalescedJoins.Load(),
		LoaderErrors:      e.stats.loaderErrors.Load(),
		RecoveredOnGrace:  e.stats.recoveredOnGrace.Load(),
		VerificationStale: e.stats.verificationStale.Load(),
	}
}
