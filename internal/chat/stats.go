package chat

import "sync/atomic"

// Stats holds the throughput counters. They are observational only.
type Stats struct {
	inFlight    atomic.Int64
	total       atomic.Int64
	connections atomic.Int64
}

// MessageHandled records one dispatched inbound message.
func (s *Stats) MessageHandled() {
	s.inFlight.Add(1)
	s.total.Add(1)
}

// ConnectionCreated records one accepted transport and returns the new count.
func (s *Stats) ConnectionCreated() int64 {
	return s.connections.Add(1)
}

// SwapInFlight returns the messages handled since the previous call and resets
// the counter.
func (s *Stats) SwapInFlight() int64 {
	return s.inFlight.Swap(0)
}

// Total returns the number of messages handled since start.
func (s *Stats) Total() int64 {
	return s.total.Load()
}

// Connections returns the number of transports accepted since start.
func (s *Stats) Connections() int64 {
	return s.connections.Load()
}
