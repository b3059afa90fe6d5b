package engine

import (
	"context"
	"time"

	"github.com/arqcache/qcache/internal/qlog"
	"github.com/arqcache/qcache/tagpath"
)

// spawnRefresh implements the SWR half of the background refresher
// (spec §4.7): fire-and-forget, detached from the caller's scope, never
// holding the coalescer entry the synchronous request already released.
// Success replaces the stored entry; failure is swallowed.
func (e *Engine) spawnRefresh(cacheKey string, tags []tagpath.Path, loader Loader, cfg queryConfig) {
	e.bgWG.Add(1)
	go func() {
		defer e.bgWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		v, err := loader(ctx)
		if err != nil {
			qlog.Warn("background refresh for %s: loader failed: %v", cacheKey, err)
			return
		}
		if err := e.store(ctx, cacheKey, v, tags, cfg); err != nil {
			qlog.Warn("background refresh for %s: store failed: %v", cacheKey, err)
			return
		}
		qlog.Trace("refresh", "background refresh for %s succeeded", cacheKey)
	}()
}

// backgroundTimeout bounds a detached refresh/verification load so a
// wedged loader can't keep Disconnect waiting forever.
const backgroundTimeout = 30 * time.Second
