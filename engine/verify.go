package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arqcache/qcache/entry"
	"github.com/arqcache/qcache/internal/qlog"
	"github.com/arqcache/qcache/storage"
)

// spawnVerification implements the sampled verification half of the
// background refresher (spec §4.7): reload the value, hash both the
// cached and fresh values, and report staleness to the backend if it
// opted into VerificationReporter. Every error here — loader failure or
// a failed report — is swallowed (E-Verification, spec §7).
func (e *Engine) spawnVerification(cacheKey string, loader Loader, cached entry.Entry) {
	e.bgWG.Add(1)
	go func() {
		defer e.bgWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		fresh, err := loader(ctx)
		if err != nil {
			qlog.Warn("verification for %s: loader failed: %v", cacheKey, err)
			return
		}

		cachedHash, err := stableHash(cached.Value)
		if err != nil {
			qlog.Warn("verification for %s: hash cached value: %v", cacheKey, err)
			return
		}
		freshHash, err := stableHash(fresh)
		if err != nil {
			qlog.Warn("verification for %s: hash fresh value: %v", cacheKey, err)
			return
		}
		isStale := cachedHash != freshHash
		if isStale {
			e.stats.verificationStale.Add(1)
		}

		report := storage.VerificationReport{
			Key:        cacheKey,
			IsStale:    isStale,
			CachedHash: cachedHash,
			FreshHash:  freshHash,
			Timestamp:  e.clock(),
		}
		if err := e.verifier.ReportVerification(ctx, report); err != nil {
			qlog.Warn("verification for %s: report failed: %v", cacheKey, err)
		}
	}()
}

// stableHash implements the glossary's "stable hash": a djb2-style 32-bit
// hash of the value's canonical JSON serialization, rendered as 8 hex
// digits. encoding/json already sorts map keys, which is sufficient
// canonicalization for the loader-returned values qcache expects to see
// (plain structs and maps, not values with embedded nondeterminism).
func stableHash(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("stable hash: marshal: %w", err)
	}
	var h uint32 = 5381
	for _, c := range b {
		h = h*33 + uint32(c)
	}
	return fmt.Sprintf("%08x", h), nil
}
