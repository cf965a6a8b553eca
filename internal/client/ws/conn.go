// Package ws provides the client side WebSocket transport, built on
// gorilla/websocket.
package ws

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/omochice/relay-chat/internal/chat"
)

var aLongTimeAgo = time.Unix(1, 0)

// Conn adapts a gorilla/websocket client connection to chat.Conn interface.
type Conn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// Dial opens a WebSocket connection to url, e.g. "ws://localhost:2812/".
// Messages larger than maxSize end the connection; zero means no limit.
func Dial(ctx context.Context, url string, maxSize int) (*Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	if maxSize > 0 {
		conn.SetReadLimit(int64(maxSize))
	}
	return &Conn{conn: conn}, nil
}

// Read implements chat.Conn.
// Reads a binary message from the WebSocket connection.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		c.conn.UnderlyingConn().SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, fmt.Errorf("%w: %v", io.EOF, err)
		}
		return nil, err
	}
	if messageType != websocket.BinaryMessage {
		return nil, fmt.Errorf("unexpected message type %d: %w", messageType, chat.ErrMalformed)
	}
	return data, nil
}

// Write implements chat.Conn.
// Writes a binary message to the WebSocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.UnderlyingConn().SetWriteDeadline(aLongTimeAgo)
	})
	defer stop()

	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}
	return nil
}

// Close implements chat.Conn.
// Sends a normal closure before closing the connection.
func (c *Conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
