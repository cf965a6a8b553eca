// Package client implements a Go client of the relay chat protocol.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/omochice/relay-chat/internal/chat"
	tcpclient "github.com/omochice/relay-chat/internal/client/tcp"
	wsclient "github.com/omochice/relay-chat/internal/client/ws"
	"github.com/omochice/relay-chat/internal/config"
	"github.com/omochice/relay-chat/pkg/protocol"
)

// ErrClosed is returned by Receive once the connection has ended.
var ErrClosed = errors.New("client: connection closed")

// Client represents one connection to the relay server.
type Client struct {
	conn     chat.Conn
	messages chan protocol.Message

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	mu  sync.Mutex
	err error
}

// Dial connects to address over transport, "tcp" or "ws". For "ws" the
// address may be a full URL; a bare host:port gets "ws://" and "/".
func Dial(ctx context.Context, transport, address string, maxSize int) (*Client, error) {
	switch transport {
	case config.TransportTCP:
		conn, err := tcpclient.Dial(ctx, address, maxSize)
		if err != nil {
			return nil, err
		}
		return New(conn), nil

	case config.TransportWS:
		url := address
		if !strings.Contains(url, "://") {
			url = "ws://" + address + "/"
		}
		conn, err := wsclient.Dial(ctx, url, maxSize)
		if err != nil {
			return nil, err
		}
		return New(conn), nil

	default:
		return nil, fmt.Errorf("unsupported client transport %q", transport)
	}
}

// New creates a Client on an established connection and starts receiving.
func New(conn chat.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:     conn,
		messages: make(chan protocol.Message, 64),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.wg.Add(1)
	go c.receive()

	return c
}

// Send writes one message to the server.
func (c *Client) Send(ctx context.Context, msg protocol.Message) error {
	if err := c.conn.Write(ctx, protocol.Encode(msg)); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Kind(), err)
	}
	return nil
}

// Login asks the server to bind the connection to user.
func (c *Client) Login(ctx context.Context, user string) error {
	return c.Send(ctx, protocol.LoginRequest{User: user})
}

// Logout asks the server to release user from the connection.
func (c *Client) Logout(ctx context.Context, user string) error {
	return c.Send(ctx, protocol.LogoutRequest{User: user})
}

// SendMessage asks the server to relay text from sender to recipient.
func (c *Client) SendMessage(ctx context.Context, sender, recipient, text string) error {
	return c.Send(ctx, protocol.MessageFromUserToUser{
		Sender:    sender,
		Recipient: recipient,
		Text:      text,
	})
}

// Messages returns the channel of messages received from the server.
// It is closed when the connection ends.
func (c *Client) Messages() <-chan protocol.Message {
	return c.messages
}

// Receive waits for the next message from the server.
func (c *Client) Receive(ctx context.Context) (protocol.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-c.messages:
		if !ok {
			if err := c.Err(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrClosed, err)
			}
			return nil, ErrClosed
		}
		return msg, nil
	}
}

// Err returns the error that ended the connection, if it has ended.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the connection and waits for the receiver to stop.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.closeErr = err
		}
		c.wg.Wait()
	})
	return c.closeErr
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr()
}

func (c *Client) receive() {
	defer c.wg.Done()
	defer close(c.messages)

	for {
		data, err := c.conn.Read(c.ctx)
		if err != nil {
			if errors.Is(err, chat.ErrMalformed) && c.ctx.Err() == nil {
				log.Printf("Skipping malformed frame from %s: %v", c.conn.RemoteAddr(), err)
				continue
			}
			c.setErr(err)
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Printf("Failed to decode message: %v", err)
			continue
		}

		select {
		case c.messages <- msg:
		case <-c.ctx.Done():
			c.setErr(c.ctx.Err())
			return
		}
	}
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}
