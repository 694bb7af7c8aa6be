// Command exchange starts the FIX-dialect order matching server: it
// wires together configuration, logging, the order book, the optional
// persistence and broadcast sinks, the admin HTTP API, and the TCP
// acceptor, then runs until interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Demiserular/crucible-exchange/internal/acceptor"
	"github.com/Demiserular/crucible-exchange/internal/adminapi"
	"github.com/Demiserular/crucible-exchange/internal/broadcast"
	"github.com/Demiserular/crucible-exchange/internal/config"
	"github.com/Demiserular/crucible-exchange/internal/dispatcher"
	"github.com/Demiserular/crucible-exchange/internal/logging"
	"github.com/Demiserular/crucible-exchange/internal/matching"
	"github.com/Demiserular/crucible-exchange/internal/persistence"
	"github.com/Demiserular/crucible-exchange/internal/session"
)

func main() {
	cfg := config.LoadFromEnv("")

	sugar, err := logging.NewWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer sugar.Sync()
	sugar.Infow("logger_initialized", "log_file", cfg.LogFile)

	book := matching.New(cfg.Symbols)

	var persistSink persistence.Sink = persistence.NoopSink{}
	if cfg.Persistence.Path != "" {
		pebbleSink, err := persistence.NewPebbleSink(cfg.Persistence.Path, sugar)
		if err != nil {
			sugar.Fatalw("persistence_init_failed", "err", err)
		}
		defer pebbleSink.Close()
		persistSink = pebbleSink
		sugar.Infow("persistence_enabled", "path", cfg.Persistence.Path)
	} else {
		sugar.Info("persistence_disabled")
	}

	hub := broadcast.NewWSHub(sugar)
	var broadcastSink broadcast.Sink = hub

	book.PersistOrder = func(order matching.Order) { persistSink.SaveOrder(order) }
	book.PersistExecution = func(exec matching.Execution) { persistSink.SaveExecution(exec) }
	book.Broadcast = func(eventType string, payload interface{}) { broadcastSink.Emit(eventType, payload) }

	handlers := dispatcher.New(book, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adminServer := adminapi.NewServer(book, hub, sugar)

	go func() {
		sugar.Infow("admin_api_starting", "addr", cfg.Admin.ListenAddr)
		if err := adminServer.ListenAndServe(cfg.Admin.ListenAddr); err != nil {
			sugar.Errorw("admin_api_failed", "err", err)
		}
	}()

	wireAcceptor := acceptor.New(
		cfg.Wire.ListenAddr,
		cfg.Wire.ReadTimeout,
		func(peerAddr string) *session.Session {
			return session.New(peerAddr, "EXCHANGE", handlers)
		},
		sugar,
	)

	sugar.Infow("exchange_starting",
		"wire_addr", cfg.Wire.ListenAddr,
		"admin_addr", cfg.Admin.ListenAddr,
		"symbols", cfg.Symbols,
	)

	if err := wireAcceptor.Run(ctx); err != nil && ctx.Err() == nil {
		sugar.Fatalw("acceptor_failed", "err", err)
	}

	sugar.Info("exchange_shutdown_complete")
}
