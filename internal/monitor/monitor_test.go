package monitor_test

import (
	"bytes"
	"context"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/internal/monitor"
)

type nopConn struct{}

func (nopConn) Read(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (nopConn) Write(context.Context, []byte) error { return nil }
func (nopConn) Close() error                        { return nil }
func (nopConn) RemoteAddr() string                  { return "nop" }

func handled(stats *chat.Stats, n int) {
	for i := 0; i < n; i++ {
		stats.MessageHandled()
	}
}

func TestMonitor_Tick(t *testing.T) {
	stats := &chat.Stats{}
	dir := chat.NewDirectory()
	dir.TryLogin("alice", chat.NewConnection(nopConn{}, 0))
	dir.TryLogin("alice", chat.NewConnection(nopConn{}, 0))
	dir.TryLogin("bob", chat.NewConnection(nopConn{}, 0))

	m := monitor.New(stats, dir, time.Second, nil)

	tests := []struct {
		name    string
		handled int
		want    monitor.Report
	}{
		// Idle ticks before any traffic do not dilute the average.
		{"idle start", 0, monitor.Report{Users: 2, Connections: 3}},
		{"first traffic", 10, monitor.Report{InFlight: 10, Rate: 10, Average: 10, Total: 10, Users: 2, Connections: 3}},
		{"more traffic", 20, monitor.Report{InFlight: 20, Rate: 20, Average: 15, Total: 30, Users: 2, Connections: 3}},
		{"idle again", 0, monitor.Report{InFlight: 0, Rate: 0, Average: 10, Total: 30, Users: 2, Connections: 3}},
	}

	for _, tt := range tests {
		handled(stats, tt.handled)
		if got := m.Tick(); got != tt.want {
			t.Errorf("%s: Tick() = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestMonitor_TickScalesToInterval(t *testing.T) {
	stats := &chat.Stats{}
	m := monitor.New(stats, chat.NewDirectory(), 2*time.Second, nil)

	handled(stats, 10)
	got := m.Tick()
	if got.Rate != 5 || got.Average != 5 {
		t.Errorf("Tick() = %+v, want Rate 5 and Average 5", got)
	}
}

func TestReport_String(t *testing.T) {
	r := monitor.Report{InFlight: 7, Rate: 7, Average: 3, Total: 12, Users: 2, Connections: 4}
	want := "7 msg/sec | avg: 3 msg/sec (2 logged users | 4 logged connections)"
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// syncBuffer guards a bytes.Buffer shared with the monitor goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMonitor_Run(t *testing.T) {
	var out syncBuffer
	stats := &chat.Stats{}
	handled(stats, 3)
	m := monitor.New(stats, chat.NewDirectory(), 10*time.Millisecond, log.New(&out, "", 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "msg/sec") {
		if time.Now().After(deadline) {
			t.Fatal("no report logged")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}
}
