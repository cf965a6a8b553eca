// Package ws provides the WebSocket transport of the chat server.
//
// The handshake is done on the raw net.Conn with gobwas/ws, and every binary
// WebSocket message afterwards carries one encoded protocol message.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/relay-chat/internal/chat"
)

// DefaultMaxMessageSize is used when a non-positive limit is given.
const DefaultMaxMessageSize = 64 * 1024

var aLongTimeAgo = time.Unix(1, 0)

// Conn adapts a server side WebSocket connection to chat.Conn interface.
type Conn struct {
	conn    net.Conn
	reader  *wsutil.Reader
	control wsutil.FrameHandlerFunc
	maxSize int

	wmu        sync.Mutex
	peerClosed atomic.Bool
	// writeFailed is set when a write may have left a partial frame.
	writeFailed atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// Upgrade answers the opening handshake read from conn and wraps the
// upgraded connection. ctx bounds the handshake only.
func Upgrade(ctx context.Context, conn net.Conn, maxSize int) (*Conn, error) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(aLongTimeAgo)
	})

	_, err := ws.Upgrade(conn)
	if !stop() {
		return nil, fmt.Errorf("websocket handshake: %w", ctx.Err())
	}
	if err != nil {
		return nil, fmt.Errorf("websocket handshake: %w", err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}
	return NewConn(conn, maxSize), nil
}

// NewConn wraps an already upgraded connection.
func NewConn(conn net.Conn, maxSize int) *Conn {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	c := &Conn{conn: conn, maxSize: maxSize}
	c.control = wsutil.ControlFrameHandler(lockedWriter{c}, ws.StateServerSide)
	c.reader = &wsutil.Reader{
		Source:         conn,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: c.control,
	}
	return c
}

// lockedWriter writes control frame replies without interleaving them with
// data messages.
type lockedWriter struct {
	c *Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.wmu.Lock()
	defer w.c.wmu.Unlock()
	return w.c.conn.Write(p)
}

// Read implements chat.Conn.
// Reads the next binary message; pings are answered on the way.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return nil, c.readError(ctx, err)
		}
		if hdr.OpCode.IsControl() {
			err := c.control(hdr, c.reader)
			if hdr.OpCode == ws.OpClose {
				c.peerClosed.Store(true)
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, fmt.Errorf("%w: %v", io.EOF, err)
			}
			if err != nil {
				return nil, c.readError(ctx, err)
			}
			continue
		}

		if hdr.OpCode != ws.OpBinary {
			if err := c.reader.Discard(); err != nil {
				return nil, c.readError(ctx, err)
			}
			return nil, fmt.Errorf("unexpected frame opcode %d: %w", hdr.OpCode, chat.ErrMalformed)
		}

		data, err := io.ReadAll(io.LimitReader(c.reader, int64(c.maxSize)+1))
		if err != nil {
			return nil, c.readError(ctx, err)
		}
		if len(data) > c.maxSize {
			if err := c.reader.Discard(); err != nil {
				return nil, c.readError(ctx, err)
			}
			return nil, fmt.Errorf("message exceeds limit of %d bytes: %w", c.maxSize, chat.ErrMalformed)
		}
		return data, nil
	}
}

// readError maps a failed read. A close frame between fragments is a clean
// end of stream too.
func (c *Conn) readError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		c.peerClosed.Store(true)
		return fmt.Errorf("%w: %v", io.EOF, closed)
	}
	return err
}

// Write implements chat.Conn.
// Writes data as one binary message.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetWriteDeadline(aLongTimeAgo)
	})
	defer stop()

	if err := wsutil.WriteServerMessage(c.conn, ws.OpBinary, data); err != nil {
		c.writeFailed.Store(true)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}
	return nil
}

// Close implements chat.Conn.
// A close frame is sent unless the peer already closed, a write is in
// progress or an earlier write failed.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		if !c.peerClosed.Load() && !c.writeFailed.Load() && c.wmu.TryLock() {
			c.conn.SetWriteDeadline(time.Now().Add(100 * time.Millisecond))
			c.conn.Write(ws.CompiledCloseNormalClosure)
			c.wmu.Unlock()
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
