// Package tcp dials the length-delimited TCP transport of the chat server.
package tcp

import (
	"context"
	"fmt"
	"net"

	"github.com/omochice/relay-chat/internal/transport/tcp"
)

// Dial connects to address and frames the stream like the server does.
func Dial(ctx context.Context, address string, maxSize int) (*tcp.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return tcp.NewConn(conn, maxSize), nil
}
