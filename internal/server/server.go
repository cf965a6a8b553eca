// Package server accepts connections on one listener and runs a chat loop
// for each of them.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/internal/config"
	"github.com/omochice/relay-chat/internal/transport/tcp"
	"github.com/omochice/relay-chat/internal/transport/ws"
)

// Backoff bounds between retries of a failed Accept.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server represents the relay acceptor.
type Server struct {
	cfg      config.Config
	loop     *chat.Loop
	stats    *chat.Stats
	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a Server that hands every accepted connection to loop.
func New(cfg config.Config, loop *chat.Loop, stats *chat.Stats) *Server {
	if stats == nil {
		stats = &chat.Stats{}
	}
	return &Server{
		cfg:   cfg,
		loop:  loop,
		stats: stats,
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	log.Printf("Server started on %s (%s)", listener.Addr().String(), s.cfg.Transport)
	return nil
}

// Serve accepts connections until ctx is cancelled, then returns nil.
// Transient accept errors are logged and retried with a backoff; a closed
// listener ends Serve with the error. Serve calls Listen if it was not
// called before.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	defer s.listener.Close()

	stop := context.AfterFunc(ctx, func() {
		s.listener.Close()
	})
	defer stop()

	var delay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("Server on %s stopped accepting", s.listener.Addr().String())
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("failed to accept connection: %w", err)
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			log.Printf("Failed to accept connection: %v; retrying in %v", err, delay)
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		n := s.stats.ConnectionCreated()
		log.Printf("Connection #%d created from %s", n, conn.RemoteAddr().String())

		s.wg.Add(1)
		go s.handle(ctx, conn)
	}
}

// Wait blocks until every accepted connection has been torn down.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	c, err := s.wrap(ctx, conn)
	if err != nil {
		log.Printf("Failed to set up connection from %s: %v", conn.RemoteAddr().String(), err)
		conn.Close()
		return
	}
	s.loop.Serve(ctx, c)
}

// wrap puts the configured transport on top of conn. Handshakes run here,
// inside the connection goroutine, so a slow peer never blocks Accept.
func (s *Server) wrap(ctx context.Context, conn net.Conn) (chat.Conn, error) {
	switch s.cfg.Transport {
	case config.TransportWS:
		hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
		defer cancel()
		return upgrade(hctx, conn, s.cfg.MaxMessageSize)

	case config.TransportAuto:
		hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
		defer cancel()
		proto, reader, err := detectProtocol(hctx, conn)
		if err != nil {
			return nil, fmt.Errorf("failed to detect protocol: %w", err)
		}
		log.Printf("Detected %s protocol from %s", proto, conn.RemoteAddr().String())
		if proto == protocolWebSocket {
			return upgrade(hctx, &bufferedConn{Conn: conn, reader: reader}, s.cfg.MaxMessageSize)
		}
		return tcp.NewConnWithReader(conn, reader, s.cfg.MaxMessageSize), nil

	default:
		return tcp.NewConn(conn, s.cfg.MaxMessageSize), nil
	}
}

func upgrade(ctx context.Context, conn net.Conn, maxSize int) (chat.Conn, error) {
	c, err := ws.Upgrade(ctx, conn, maxSize)
	if err != nil {
		return nil, err
	}
	return c, nil
}
