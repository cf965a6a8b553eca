package chat

import (
	"context"
	"log"

	"github.com/omochice/relay-chat/pkg/protocol"
)

// Handler implements the protocol rules on top of a Directory. It keeps no
// per-connection state of its own.
type Handler struct {
	dir *Directory

	// presence enables LoginEvent/LogoutEvent broadcasts.
	presence bool
}

// HandlerOption configures a Handler.
type HandlerOption func(h *Handler)

// WithPresence makes the handler announce a username's first login and last
// logout to every other logged connection.
func WithPresence(enabled bool) HandlerOption {
	return func(h *Handler) {
		h.presence = enabled
	}
}

// NewHandler creates a Handler operating on dir.
func NewHandler(dir *Directory, opts ...HandlerOption) *Handler {
	h := &Handler{dir: dir}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle applies msg received on conn and returns the responses for conn, in
// order. Deliveries to other connections happen inside Handle.
func (h *Handler) Handle(ctx context.Context, conn *Connection, msg protocol.Message) []protocol.Message {
	switch m := msg.(type) {
	case protocol.LoginRequest:
		return []protocol.Message{h.login(ctx, conn, m.User)}
	case protocol.LogoutRequest:
		return []protocol.Message{h.logout(ctx, conn, m.User)}
	case protocol.MessageFromUserToUser:
		return []protocol.Message{h.route(ctx, conn, m)}
	case protocol.LoginEvent, protocol.LogoutEvent,
		protocol.LoginOk, protocol.LoginFailed,
		protocol.LogoutOk, protocol.LogoutFailed,
		protocol.SendMessageOk,
		protocol.SendMessageFailedSenderNotLogged,
		protocol.SendMessageFailedRecipientNotLogged:
		log.Printf("Ignoring server-side message %s from %s", msg.Kind(), conn)
		return nil
	default:
		log.Printf("Ignoring unsupported message %T from %s", msg, conn)
		return nil
	}
}

// Disconnect releases the session held by conn. The connection loop calls it
// exactly once when the connection terminates.
func (h *Handler) Disconnect(ctx context.Context, conn *Connection) {
	username, last := h.dir.closed(conn)
	if username == "" {
		return
	}
	log.Printf("User %s logged out by disconnect of %s", username, conn)
	if last && h.presence {
		h.broadcast(ctx, protocol.LogoutEvent{User: username}, h.dir.Connections(""))
	}
}

func (h *Handler) login(ctx context.Context, conn *Connection, username string) protocol.Message {
	ok, first := h.dir.login(username, conn)
	if !ok {
		log.Printf("Login as %s refused for %s", username, conn)
		return protocol.LoginFailed{}
	}
	log.Printf("User %s logged in on %s", username, conn)
	if first && h.presence {
		h.broadcast(ctx, protocol.LoginEvent{User: username}, h.dir.Connections(username))
	}
	return protocol.LoginOk{}
}

func (h *Handler) logout(ctx context.Context, conn *Connection, username string) protocol.Message {
	ok, last := h.dir.logout(username, conn)
	if !ok {
		log.Printf("Logout of %s refused for %s", username, conn)
		return protocol.LogoutFailed{}
	}
	log.Printf("User %s logged out on %s", username, conn)
	if last && h.presence {
		h.broadcast(ctx, protocol.LogoutEvent{User: username}, h.dir.Connections(""))
	}
	return protocol.LogoutOk{}
}

func (h *Handler) route(ctx context.Context, conn *Connection, msg protocol.MessageFromUserToUser) protocol.Message {
	if sender, ok := h.dir.Username(conn); !ok || sender != msg.Sender {
		return protocol.SendMessageFailedSenderNotLogged{}
	}

	recipients := h.dir.Lookup(msg.Recipient)
	if len(recipients) == 0 {
		return protocol.SendMessageFailedRecipientNotLogged{}
	}

	h.broadcast(ctx, msg, recipients)
	return protocol.SendMessageOk{}
}

// broadcast writes msg to every target. A failed write is logged and skipped.
func (h *Handler) broadcast(ctx context.Context, msg protocol.Message, targets []*Connection) {
	for _, target := range targets {
		if err := target.Send(ctx, msg); err != nil {
			log.Printf("Dropping delivery: %v", err)
		}
	}
}
