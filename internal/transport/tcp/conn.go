// Package tcp provides the length-delimited TCP transport of the chat server.
//
// Every frame on the stream is a uvarint payload length followed by the
// payload, which is one encoded protocol message.
package tcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/omochice/relay-chat/internal/chat"
)

// DefaultMaxFrameSize is used when NewConn is given a non-positive limit.
const DefaultMaxFrameSize = 64 * 1024

// aLongTimeAgo is a deadline in the past, used to interrupt blocked I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Conn adapts net.Conn to chat.Conn interface.
type Conn struct {
	conn    net.Conn
	reader  *bufio.Reader
	maxSize int

	wmu  sync.Mutex
	wbuf []byte
}

// NewConn wraps a net.Conn. Frames larger than maxSize are skipped.
func NewConn(conn net.Conn, maxSize int) *Conn {
	return NewConnWithReader(conn, bufio.NewReader(conn), maxSize)
}

// NewConnWithReader wraps a net.Conn whose first bytes were already buffered
// by reader, e.g. during protocol detection.
func NewConnWithReader(conn net.Conn, reader *bufio.Reader, maxSize int) *Conn {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Conn{
		conn:    conn,
		reader:  reader,
		maxSize: maxSize,
	}
}

// Read implements chat.Conn.
// Reads one length-delimited frame from the TCP connection.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	size, err := binary.ReadUvarint(c.reader)
	if err != nil {
		return nil, c.readError(ctx, err)
	}

	if size > math.MaxInt32 {
		return nil, fmt.Errorf("frame length %d cannot be skipped", size)
	}
	if size > uint64(c.maxSize) {
		if _, err := io.CopyN(io.Discard, c.reader, int64(size)); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, c.readError(ctx, err)
		}
		return nil, fmt.Errorf("frame of %d bytes exceeds limit of %d: %w", size, c.maxSize, chat.ErrMalformed)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(c.reader, data); err != nil {
		return nil, c.readError(ctx, err)
	}
	return data, nil
}

// readError maps a failed read. A stream cut inside a frame is not a clean
// end of stream, and a deadline forced by cancellation reports the context
// error.
func (c *Conn) readError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("truncated frame: %w", err)
	}
	return err
}

// Write implements chat.Conn.
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

	c.wbuf = binary.AppendUvarint(c.wbuf[:0], uint64(len(data)))
	c.wbuf = append(c.wbuf, data...)
	if _, err := c.conn.Write(c.wbuf); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}
	return nil
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
