package server

import (
	"bufio"
	"context"
	"net"
	"time"
)

type protocolType int

const (
	protocolFramed protocolType = iota
	protocolWebSocket
)

func (p protocolType) String() string {
	if p == protocolWebSocket {
		return "websocket"
	}
	return "framed"
}

// detectProtocol peeks at the first bytes to tell a WebSocket opening
// handshake from a length-delimited stream.
//
// A framed stream opening with 'G' announces a 71 byte frame, so a second
// byte always follows. 'E' is not a message kind, which leaves "GE" to the
// "GET " of an HTTP request.
func detectProtocol(ctx context.Context, conn net.Conn) (protocolType, *bufio.Reader, error) {
	reader := bufio.NewReader(conn)

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer func() {
		if stop() {
			conn.SetReadDeadline(time.Time{})
		}
	}()

	first, err := reader.Peek(1)
	if err != nil {
		return protocolFramed, reader, err
	}
	if first[0] != 'G' {
		return protocolFramed, reader, nil
	}

	peek, err := reader.Peek(2)
	if err != nil {
		return protocolFramed, reader, err
	}
	if peek[1] == 'E' {
		return protocolWebSocket, reader, nil
	}
	return protocolFramed, reader, nil
}

// bufferedConn wraps a net.Conn with a bufio.Reader to preserve peeked data
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}
