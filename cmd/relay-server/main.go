package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/internal/config"
	"github.com/omochice/relay-chat/internal/monitor"
	"github.com/omochice/relay-chat/internal/server"
)

func main() {
	// Environment first, command-line flags override it
	cfg := config.FromEnv()
	flag.StringVar(&cfg.Address, "address", cfg.Address, "Address to listen on (e.g., :2812)")
	flag.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport: tcp, ws or auto")
	flag.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Close connections silent for this long (0 disables)")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Bound on every write to a connection")
	flag.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "Bound on protocol detection and WebSocket handshake")
	flag.IntVar(&cfg.MaxMessageSize, "max-message-size", cfg.MaxMessageSize, "Largest accepted inbound message in bytes")
	flag.DurationVar(&cfg.ReportInterval, "report-interval", cfg.ReportInterval, "Throughput report period")
	flag.BoolVar(&cfg.Presence, "presence", cfg.Presence, "Broadcast login and logout events")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := &chat.Stats{}
	dir := chat.NewDirectory()
	handler := chat.NewHandler(dir, chat.WithPresence(cfg.Presence))
	loop := chat.NewLoop(handler,
		chat.WithStats(stats),
		chat.WithIdleTimeout(cfg.IdleTimeout),
		chat.WithWriteTimeout(cfg.WriteTimeout),
	)

	srv := server.New(cfg, loop, stats)
	if err := srv.Listen(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	mon := monitor.New(stats, dir, cfg.ReportInterval, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		return mon.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		return nil
	})

	err := g.Wait()
	srv.Wait()
	if err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Relay server stopped")
}
