// Command qcachehttpd runs the reference remote-KV storage backend as a
// standalone HTTP service: an in-memory backend wrapped by httpkv.Server,
// reachable by any qcache engine configured with httpkv.NewClient against
// this process's address.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arqcache/qcache/backend/httpkv"
	"github.com/arqcache/qcache/backend/memory"
	"github.com/arqcache/qcache/internal/qlog"
)

func main() {
	addr := flag.String("addr", ":8088", "listen address")
	capacity := flag.Int("capacity", 10000, "backing memory cache capacity")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "graceful shutdown deadline")
	flag.Parse()

	be, err := memory.New(*capacity)
	if err != nil {
		qlog.Error("construct memory backend: %v", err)
		os.Exit(1)
	}
	srv := httpkv.NewServer(be)

	httpSrv := &http.Server{
		Addr:         *addr,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	qlog.Info("qcachehttpd listening on %s", *addr)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			qlog.Error("http server failed: %v", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	qlog.Info("received signal %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		qlog.Error("http server shutdown: %v", err)
	}
	qlog.Info("qcachehttpd shutdown complete")
}
