package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omochice/relay-chat/pkg/protocol"
)

// DefaultWriteTimeout bounds writes when NewConnection is given a
// non-positive timeout.
const DefaultWriteTimeout = 5 * time.Second

// ErrBroken is returned by Send once an earlier write on the connection
// failed.
var ErrBroken = errors.New("connection broken by a failed write")

// Connection is the server side handle of one active transport. It is the key
// of the directory's reverse index and serializes every outbound write, since
// unrelated connections may route messages to it concurrently.
type Connection struct {
	id           string
	conn         Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	buf    []byte
	broken bool
}

// NewConnection wraps conn. Every write is bounded by writeTimeout, or by
// DefaultWriteTimeout when it is not positive.
func NewConnection(conn Conn, writeTimeout time.Duration) *Connection {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Connection{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// RemoteAddr returns the remote address of the underlying transport.
func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr()
}

func (c *Connection) String() string {
	return c.id + "@" + c.conn.RemoteAddr()
}

// Send encodes msg and writes it. Concurrent callers are serialized, so one
// message never interleaves with another on the wire.
//
// A failed write may have left part of a frame on the wire. The transport is
// closed, which ends the peer's loop, and every later Send fails with
// ErrBroken without writing.
func (c *Connection) Send(ctx context.Context, msg protocol.Message) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return fmt.Errorf("failed to send %s to %s: %w", msg.Kind(), c, ErrBroken)
	}

	c.buf = protocol.Append(c.buf[:0], msg)
	if err := c.conn.Write(ctx, c.buf); err != nil {
		c.broken = true
		c.conn.Close()
		return fmt.Errorf("failed to send %s to %s: %w", msg.Kind(), c, err)
	}
	return nil
}
