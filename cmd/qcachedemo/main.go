// Command qcachedemo runs the cache engine against the in-process memory
// backend and drives it through a handful of queries, printing each
// result and, at the end, the engine's hit/miss counters. It exists to exercise the engine end to end without
// standing up Redis or an HTTP peer.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/arqcache/qcache/backend/memory"
	"github.com/arqcache/qcache/engine"
	"github.com/arqcache/qcache/internal/qlog"
	"github.com/arqcache/qcache/tagpath"
)

func main() {
	capacity := flag.Int("capacity", 1000, "in-memory backend entry capacity")
	ttl := flag.Duration("ttl", 5*time.Second, "default freshness window")
	grace := flag.Duration("grace", 10*time.Second, "default grace window")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		qlog.SetLevel(qlog.DEBUG)
	}

	be, err := memory.New(*capacity)
	if err != nil {
		qlog.Error("construct memory backend: %v", err)
		return
	}

	e, err := engine.New(be, engine.WithDefaultTTL(*ttl), engine.WithDefaultGrace(*grace))
	if err != nil {
		qlog.Error("construct engine: %v", err)
		return
	}

	ctx := context.Background()
	loads := 0
	loader := func(context.Context) (any, error) {
		loads++
		return map[string]int{"load": loads}, nil
	}
	userTags := []tagpath.Path{tagpath.New("user", "42")}

	for i := 0; i < 3; i++ {
		v, err := e.Query(ctx, "getUser:42", userTags, loader)
		if err != nil {
			qlog.Error("query failed: %v", err)
			return
		}
		fmt.Printf("query %d -> %v\n", i, v)
	}

	if err := e.Invalidate(ctx, []tagpath.Path{tagpath.New("user")}, false); err != nil {
		qlog.Error("invalidate failed: %v", err)
		return
	}
	v, err := e.Query(ctx, "getUser:42", userTags, loader)
	if err != nil {
		qlog.Error("post-invalidate query failed: %v", err)
		return
	}
	fmt.Printf("post-invalidate -> %v\n", v)

	stats := e.Stats()
	fmt.Printf("hits=%d misses=%d stale_served=%d coalesced_joins=%d loader_errors=%d recovered_on_grace=%d\n",
		stats.Hits, stats.Misses, stats.StaleServed, stats.CoalescedJoins, stats.LoaderErrors, stats.RecoveredOnGrace)

	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.Disconnect(dctx); err != nil {
		qlog.Error("disconnect: %v", err)
	}
}
