package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/omochice/relay-chat/pkg/protocol"
)

// CloseReason tells why a connection loop ended.
type CloseReason int

const (
	// ReasonCancelled means the server context was cancelled.
	ReasonCancelled CloseReason = iota
	// ReasonPeerClosed means the peer closed the connection gracefully.
	ReasonPeerClosed
	// ReasonIdleTimeout means no message arrived within the idle timeout.
	ReasonIdleTimeout
	// ReasonTransportError means the transport failed (reset, I/O error).
	ReasonTransportError
)

// String returns the string representation of CloseReason
func (r CloseReason) String() string {
	switch r {
	case ReasonCancelled:
		return "cancelled"
	case ReasonPeerClosed:
		return "closed by peer"
	case ReasonIdleTimeout:
		return "idle timeout"
	case ReasonTransportError:
		return "transport error"
	default:
		return "unknown"
	}
}

// Loop drives one connection: read a message, dispatch it to the Handler,
// write the responses, repeat until the connection terminates.
type Loop struct {
	handler      *Handler
	stats        *Stats
	idleTimeout  time.Duration
	writeTimeout time.Duration
}

// LoopOption configures a Loop.
type LoopOption func(l *Loop)

// WithIdleTimeout closes connections that stay silent for longer than d.
// Zero disables the timeout.
func WithIdleTimeout(d time.Duration) LoopOption {
	return func(l *Loop) {
		l.idleTimeout = d
	}
}

// WithWriteTimeout bounds every write on the connections served by the loop.
// A non-positive d keeps DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) LoopOption {
	return func(l *Loop) {
		l.writeTimeout = d
	}
}

// WithStats makes the loop count handled messages into stats.
func WithStats(stats *Stats) LoopOption {
	return func(l *Loop) {
		l.stats = stats
	}
}

// NewLoop creates a Loop dispatching to handler.
func NewLoop(handler *Handler, opts ...LoopOption) *Loop {
	l := &Loop{handler: handler}
	for _, opt := range opts {
		opt(l)
	}
	if l.stats == nil {
		l.stats = &Stats{}
	}
	return l
}

// Serve runs the connection until it terminates and returns why. Cancelling
// ctx unblocks a pending read. Before returning, Serve releases the session
// held by the connection and closes conn.
func (l *Loop) Serve(ctx context.Context, conn Conn) CloseReason {
	c := NewConnection(conn, l.writeTimeout)

	// Responses are still written while draining after cancellation.
	writeCtx := context.WithoutCancel(ctx)

	var timedOut atomic.Bool
	var idle *time.Timer
	if l.idleTimeout > 0 {
		idle = time.AfterFunc(l.idleTimeout, func() {
			timedOut.Store(true)
			conn.Close()
		})
	}

	defer func() {
		if idle != nil {
			idle.Stop()
		}
		l.handler.Disconnect(writeCtx, c)
		if err := conn.Close(); err != nil && !isClosedError(err) {
			log.Printf("Failed to close %s: %v", c, err)
		}
	}()

	log.Printf("Connection %s accepted", c)

	for {
		if idle != nil {
			idle.Reset(l.idleTimeout)
		}

		data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, ErrMalformed) && ctx.Err() == nil && !timedOut.Load() {
				log.Printf("Skipping malformed frame from %s: %v", c, err)
				continue
			}
			reason := classify(ctx, err, timedOut.Load())
			switch reason {
			case ReasonCancelled, ReasonPeerClosed:
				log.Printf("Connection %s %s", c, reason)
			default:
				log.Printf("Connection %s %s: %v", c, reason, err)
			}
			return reason
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Printf("Failed to decode message from %s: %v", c, err)
			continue
		}

		l.stats.MessageHandled()
		for _, resp := range l.handler.Handle(writeCtx, c, msg) {
			if err := c.Send(writeCtx, resp); err != nil {
				log.Printf("Failed to answer %s: %v", msg.Kind(), err)
			}
		}
	}
}

func classify(ctx context.Context, err error, timedOut bool) CloseReason {
	switch {
	case ctx.Err() != nil:
		return ReasonCancelled
	case timedOut:
		return ReasonIdleTimeout
	case errors.Is(err, io.EOF):
		return ReasonPeerClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonIdleTimeout
	}
	return ReasonTransportError
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
