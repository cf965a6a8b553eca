// Package loadgen drives random login, message and logout traffic against a
// relay server, one client per connection.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/internal/config"
)

// Options configures a Generator. Zero values take the defaults noted.
type Options struct {
	Transport string // tcp
	Address   string // localhost:2812
	Clients   int    // 100
	Peers     int    // Clients
	// MessagesPerLogin is the average number of messages per session (100).
	MessagesPerLogin int
	// LoginDelay is the average pause before each login (1s).
	LoginDelay time.Duration
	// MessageDelay is the average pause between messages (100ms).
	MessageDelay time.Duration
	// Timeout bounds connecting and every write (5s).
	Timeout time.Duration
	// ReportInterval is the period of the "Current connections" line (4s).
	ReportInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Transport == "" {
		o.Transport = config.TransportTCP
	}
	if o.Address == "" {
		o.Address = "localhost:2812"
	}
	if o.Clients <= 0 {
		o.Clients = 100
	}
	if o.Peers <= 0 {
		o.Peers = o.Clients
	}
	if o.MessagesPerLogin <= 0 {
		o.MessagesPerLogin = 100
	}
	if o.LoginDelay <= 0 {
		o.LoginDelay = time.Second
	}
	if o.MessageDelay <= 0 {
		o.MessageDelay = 100 * time.Millisecond
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.ReportInterval <= 0 {
		o.ReportInterval = 4 * time.Second
	}
	return o
}

// Generator opens the clients and keeps them busy until cancelled.
type Generator struct {
	opts Options

	active   atomic.Int64
	sent     atomic.Int64
	received atomic.Int64
}

// New creates a Generator.
func New(opts Options) *Generator {
	return &Generator{opts: opts.withDefaults()}
}

// Active returns the number of clients currently connected.
func (g *Generator) Active() int64 { return g.active.Load() }

// Sent returns the number of requests written so far.
func (g *Generator) Sent() int64 { return g.sent.Load() }

// Received returns the number of server messages read so far.
func (g *Generator) Received() int64 { return g.received.Load() }

// Run connects the clients one after the other, then drives traffic on all
// of them until ctx is cancelled or every connection is lost.
func (g *Generator) Run(ctx context.Context) error {
	var grp errgroup.Group

	reportCtx, stopReport := context.WithCancel(ctx)
	defer stopReport()
	go g.report(reportCtx)

	for i := 0; i < g.opts.Clients; i++ {
		if ctx.Err() != nil {
			break
		}

		dialCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		c, err := client.Dial(dialCtx, g.opts.Transport, g.opts.Address, 0)
		cancel()
		if err != nil {
			log.Printf("#%d: %v", i, err)
			continue
		}

		g.active.Add(1)
		i := i
		grp.Go(func() error {
			defer g.active.Add(-1)
			defer c.Close()
			g.drive(ctx, c, i)
			return nil
		})
	}

	log.Printf("Running %d clients against %s", g.Active(), g.opts.Address)
	grp.Wait()

	if g.Sent() == 0 && ctx.Err() == nil {
		return errors.New("loadgen: no client could send any traffic")
	}
	return nil
}

func (g *Generator) report(ctx context.Context) {
	ticker := time.NewTicker(g.opts.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("Current connections: %d (sent %d, received %d)", g.Active(), g.Sent(), g.Received())
		}
	}
}

// drive runs login, messages, logout cycles with random users and pauses.
func (g *Generator) drive(ctx context.Context, c *client.Client, id int) {
	go func() {
		for range c.Messages() {
			g.received.Add(1)
		}
	}()

	for {
		if err := sleep(ctx, jitter(g.opts.LoginDelay)); err != nil {
			return
		}

		user := strconv.Itoa(rand.Intn(g.opts.Peers))
		if !g.send(ctx, c, id, func(wctx context.Context) error { return c.Login(wctx, user) }) {
			return
		}

		n := rand.Intn(2 * g.opts.MessagesPerLogin)
		for j := 0; j < n; j++ {
			if err := sleep(ctx, jitter(g.opts.MessageDelay)); err != nil {
				return
			}
			recipient := strconv.Itoa(rand.Intn(g.opts.Peers))
			text := fmt.Sprintf("Hi %s ! I'm %s... how are you ?", recipient, user)
			if !g.send(ctx, c, id, func(wctx context.Context) error { return c.SendMessage(wctx, user, recipient, text) }) {
				return
			}
		}

		if !g.send(ctx, c, id, func(wctx context.Context) error { return c.Logout(wctx, user) }) {
			return
		}
	}
}

func (g *Generator) send(ctx context.Context, c *client.Client, id int, write func(context.Context) error) bool {
	wctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	if err := write(wctx); err != nil {
		if ctx.Err() == nil {
			log.Printf("#%d connection lost: %v", id, err)
		}
		return false
	}
	g.sent.Add(1)
	return true
}

// jitter returns a random duration in [0, 2*avg).
func jitter(avg time.Duration) time.Duration {
	if avg <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(2 * avg)))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
