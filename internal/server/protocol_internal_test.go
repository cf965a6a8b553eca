package server

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"
)

func pipeWith(t *testing.T, data []byte) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	go func() {
		if len(data) > 0 {
			client.Write(data)
		}
		client.Close()
	}()
	return server
}

func TestDetectProtocol(t *testing.T) {
	// A framed message whose length byte happens to be 'G'.
	framedG := append([]byte{'G', 0x00, 5}, bytes.Repeat([]byte{'x'}, 70)...)

	tests := []struct {
		name string
		data []byte
		want protocolType
	}{
		{"websocket handshake", []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"), protocolWebSocket},
		{"framed", []byte{3, 0x00, 1, 'a'}, protocolFramed},
		{"empty frame", []byte{0}, protocolFramed},
		{"framed starting with G", framedG, protocolFramed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := pipeWith(t, tt.data)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			got, reader, err := detectProtocol(ctx, conn)
			if err != nil {
				t.Fatalf("detectProtocol() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("detectProtocol() = %v, want %v", got, tt.want)
			}

			// Nothing was consumed.
			rest, _ := io.ReadAll(&bufferedConn{Conn: conn, reader: reader})
			if !bytes.Equal(rest, tt.data) {
				t.Errorf("stream after detection = %q, want %q", rest, tt.data)
			}
		})
	}
}

func TestDetectProtocol_Errors(t *testing.T) {
	t.Run("closed before the first byte", func(t *testing.T) {
		conn := pipeWith(t, nil)
		if _, _, err := detectProtocol(context.Background(), conn); err == nil {
			t.Error("detectProtocol() error = nil, want error")
		}
	})

	t.Run("closed after G", func(t *testing.T) {
		conn := pipeWith(t, []byte{'G'})
		if _, _, err := detectProtocol(context.Background(), conn); err == nil {
			t.Error("detectProtocol() error = nil, want error")
		}
	})

	t.Run("silent peer", func(t *testing.T) {
		server, client := net.Pipe()
		defer server.Close()
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			_, _, err := detectProtocol(ctx, server)
			done <- err
		}()

		select {
		case err := <-done:
			if err == nil {
				t.Error("detectProtocol() error = nil, want timeout")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("detectProtocol() did not give up on a silent peer")
		}
	})
}

func TestProtocolType_String(t *testing.T) {
	if got := protocolFramed.String(); got != "framed" {
		t.Errorf("String() = %q, want framed", got)
	}
	if got := protocolWebSocket.String(); got != "websocket" {
		t.Errorf("String() = %q, want websocket", got)
	}
}
