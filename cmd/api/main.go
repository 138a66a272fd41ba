package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealdesk.health/internal/auth"
	"dealdesk.health/internal/authz"
	"dealdesk.health/internal/deals"
	"dealdesk.health/internal/httpapi"
	"dealdesk.health/internal/obs"
	"dealdesk.health/internal/store/pg"
	"dealdesk.health/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// With a DSN the Postgres store backs everything; without one the
	// in-memory store keeps local development and demos DSN-free.
	var (
		svc      deals.Service
		dir      authz.Directory
		accounts auth.AccountStore
		probe    httpapi.ReadyProbe
		closeFn  func() error
	)
	if dsn := os.Getenv("DEALDESK_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		svc, dir, accounts = store, store, store
		probe = httpapi.ReadyProbe{DB: store.DB()}
		closeFn = store.Close
	} else {
		mem := deals.NewInMemory()
		svc, dir = mem, mem
		log.Println("DEALDESK_PG_DSN not set, using in-memory store (login disabled)")
	}

	api := httpapi.New(probe, version, svc, dir, accounts, stream.New())

	addr := os.Getenv("DEALDESK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting dealdesk-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if closeFn != nil {
		_ = closeFn()
	}
	log.Println("Stopped")
}
