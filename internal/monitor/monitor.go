// Package monitor reports message throughput of the relay server.
package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/omochice/relay-chat/internal/chat"
)

// Report is one throughput sample.
type Report struct {
	// InFlight is the number of messages handled since the previous tick.
	InFlight int64
	// Rate is InFlight per second of the report interval.
	Rate int64
	// Average is Total per second counted since traffic started.
	Average int64
	// Total is the number of messages handled since start.
	Total int64
	// Users and Connections count logged usernames and logged connections.
	Users       int
	Connections int
}

func (r Report) String() string {
	return fmt.Sprintf("%d msg/sec | avg: %d msg/sec (%d logged users | %d logged connections)",
		r.Rate, r.Average, r.Users, r.Connections)
}

// Monitor samples Stats and the Directory at a fixed interval.
type Monitor struct {
	stats    *chat.Stats
	dir      *chat.Directory
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	elapsed time.Duration
}

// New creates a Monitor. A nil logger writes to the standard logger.
func New(stats *chat.Stats, dir *chat.Directory, interval time.Duration, logger *log.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		stats:    stats,
		dir:      dir,
		interval: interval,
		logger:   logger,
	}
}

// Run logs a report every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.logger.Print(m.Tick())
		}
	}
}

// Tick takes one sample and resets the in-flight counter.
// Ticks before the first handled message do not count towards the average.
func (m *Monitor) Tick() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Report{
		InFlight: m.stats.SwapInFlight(),
		Total:    m.stats.Total(),
	}
	r.Users, r.Connections = m.dir.Counts()

	r.Rate = perSecond(r.InFlight, m.interval)

	if r.Total != 0 {
		m.elapsed += m.interval
	}
	if m.elapsed > 0 {
		r.Average = perSecond(r.Total, m.elapsed)
	}
	return r
}

func perSecond(n int64, d time.Duration) int64 {
	return int64(float64(n) / d.Seconds())
}
