package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/relay-chat/internal/config"
	"github.com/omochice/relay-chat/internal/loadgen"
)

func main() {
	var opts loadgen.Options
	flag.StringVar(&opts.Address, "server", "localhost:2812", "Server address")
	flag.StringVar(&opts.Transport, "transport", config.TransportTCP, "Transport: tcp or ws")
	flag.IntVar(&opts.Clients, "clients", 100, "Number of connections to open")
	flag.IntVar(&opts.Peers, "peers", 0, "Number of distinct usernames (defaults to -clients)")
	flag.IntVar(&opts.MessagesPerLogin, "messages", 100, "Average number of messages per login")
	flag.DurationVar(&opts.LoginDelay, "login-delay", 0, "Average pause before each login (default 1s)")
	flag.DurationVar(&opts.MessageDelay, "message-delay", 0, "Average pause between messages (default 100ms)")
	flag.DurationVar(&opts.Timeout, "timeout", 0, "Bound on connecting and on every write (default 5s)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loadgen.New(opts).Run(ctx); err != nil {
		log.Fatalf("Load generator error: %v", err)
	}
	log.Println("Load generator stopped")
}
