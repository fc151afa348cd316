// Package main — control plane entry point.
//
// Responsibilities:
//   - Load config, open the SQLite store, run migrations
//   - Serve the ingest/query/control/reset HTTP surface
//   - Optionally fan out to NATS and push WebSocket nudges
//   - Graceful shutdown on SIGINT/SIGTERM
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/papertrade/controlplane/internal/broadcast"
	"github.com/papertrade/controlplane/internal/config"
	"github.com/papertrade/controlplane/internal/control"
	"github.com/papertrade/controlplane/internal/eventbus"
	"github.com/papertrade/controlplane/internal/httpapi"
	"github.com/papertrade/controlplane/internal/ingest"
	"github.com/papertrade/controlplane/internal/logging"
	"github.com/papertrade/controlplane/internal/market"
	"github.com/papertrade/controlplane/internal/query"
	"github.com/papertrade/controlplane/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New()

	db, err := store.Open(cfg.DBPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("store: open failed")
	}
	defer db.Close()

	fsm := control.New(db)

	bus := eventbus.Connect(cfg.NATSUrl, log)
	defer bus.Close()

	hub := broadcast.NewHub(log, cfg.MaxWSClients)

	// bus and mkt have nil-safe methods on a nil receiver, and hub is
	// always built, so passing them through unconditionally (even when
	// NATS/upstream is unconfigured) is safe without a separate "is this
	// enabled" branch.
	ingestHandlers := ingest.New(db, cfg.IngestToken, log, bus, hub)

	var mkt *market.Client
	if cfg.UpstreamURL != "" {
		mkt = market.New(cfg.UpstreamURL, cfg.SpotCacheTTL, cfg.HistoryCacheTTL)
	}
	queryHandlers := query.New(db, fsm, mkt)

	router := httpapi.New(httpapi.Deps{
		DB:          db,
		FSM:         fsm,
		Ingest:      ingestHandlers,
		Query:       queryHandlers,
		Market:      mkt,
		Hub:         hub,
		Log:         log,
		CORSOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("control plane listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown did not complete cleanly")
	}
	log.Info().Msg("shutdown complete")
}
