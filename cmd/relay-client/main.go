package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/internal/config"
)

func main() {
	// Parse command-line flags
	serverAddr := flag.String("server", "localhost:2812", "Server address (e.g., localhost:2812)")
	transport := flag.String("transport", config.TransportTCP, "Transport: tcp or ws")
	timeout := flag.Duration("timeout", 5*time.Second, "Connect and write timeout")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, *timeout)
	c, err := client.Dial(dialCtx, *transport, *serverAddr, 0)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer c.Close()

	log.Printf("Connected to %s over %s", c.RemoteAddr(), *transport)

	// Start goroutine to receive and display messages
	go func() {
		for msg := range c.Messages() {
			fmt.Println(client.Describe(msg))
		}
		if err := c.Err(); err != nil && ctx.Err() == nil {
			log.Printf("Connection closed: %v", err)
		}
		stop()
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Printf("Error reading input: %v", err)
		}
	}()

	fmt.Println("Commands: login <user> | logout <user> | msg <from> <to> <text> | quit")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			cmd, err := client.ParseCommand(line)
			if err != nil {
				fmt.Println(err)
				continue
			}
			if cmd.Name == client.CommandQuit {
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, *timeout)
			if err := c.Execute(writeCtx, cmd); err != nil {
				log.Printf("Failed to send command: %v", err)
			}
			cancel()
		}
	}
}
