// Package protocol implements the binary wire format of the relay chat.
//
// Every message starts with one tag byte identifying its Kind, followed by the
// string fields of the variant in declaration order. Each string is written as
// a varint byte length followed by its UTF-8 bytes. Variants without payload
// encode to the tag byte alone.
package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Kind identifies a message variant on the wire.
type Kind uint8

const (
	KindLoginRequest Kind = iota
	KindLoginOk
	KindLoginEvent
	KindLoginFailed
	KindLogoutOk
	KindLogoutRequest
	KindLogoutEvent
	KindLogoutFailed
	KindMessageFromUserToUser
	KindSendMessageOk
	KindSendMessageFailedRecipientNotLogged
	KindSendMessageFailedSenderNotLogged
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindLoginRequest:
		return "LOGIN_REQUEST"
	case KindLoginOk:
		return "LOGIN_OK"
	case KindLoginEvent:
		return "LOGIN_EVENT"
	case KindLoginFailed:
		return "LOGIN_FAILED"
	case KindLogoutOk:
		return "LOGOUT_OK"
	case KindLogoutRequest:
		return "LOGOUT_REQUEST"
	case KindLogoutEvent:
		return "LOGOUT_EVENT"
	case KindLogoutFailed:
		return "LOGOUT_FAILED"
	case KindMessageFromUserToUser:
		return "MESSAGE_FROM_USER_TO_USER"
	case KindSendMessageOk:
		return "SEND_MESSAGE_OK"
	case KindSendMessageFailedRecipientNotLogged:
		return "SEND_MESSAGE_FAILED_RECIPIENT_NOT_LOGGED"
	case KindSendMessageFailedSenderNotLogged:
		return "SEND_MESSAGE_FAILED_SENDER_NOT_LOGGED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// Message is one of the protocol variants declared in this package.
// The set is closed: only types of this package implement it.
type Message interface {
	Kind() Kind
	appendFields(b []byte) []byte
}

// LoginRequest asks the server to associate the connection with User.
type LoginRequest struct {
	User string
}

// LogoutRequest asks the server to drop the connection's session for User.
type LogoutRequest struct {
	User string
}

// LoginEvent announces that User has logged in.
type LoginEvent struct {
	User string
}

// LogoutEvent announces that User's last session has ended.
type LogoutEvent struct {
	User string
}

// MessageFromUserToUser carries a text message between two users. The server
// relays it unmodified to every connection of Recipient.
type MessageFromUserToUser struct {
	Sender    string
	Recipient string
	Text      string
}

type (
	LoginOk                             struct{}
	LoginFailed                         struct{}
	LogoutOk                            struct{}
	LogoutFailed                        struct{}
	SendMessageOk                       struct{}
	SendMessageFailedSenderNotLogged    struct{}
	SendMessageFailedRecipientNotLogged struct{}
)

func (LoginRequest) Kind() Kind                        { return KindLoginRequest }
func (LogoutRequest) Kind() Kind                       { return KindLogoutRequest }
func (LoginEvent) Kind() Kind                          { return KindLoginEvent }
func (LogoutEvent) Kind() Kind                         { return KindLogoutEvent }
func (MessageFromUserToUser) Kind() Kind               { return KindMessageFromUserToUser }
func (LoginOk) Kind() Kind                             { return KindLoginOk }
func (LoginFailed) Kind() Kind                         { return KindLoginFailed }
func (LogoutOk) Kind() Kind                            { return KindLogoutOk }
func (LogoutFailed) Kind() Kind                        { return KindLogoutFailed }
func (SendMessageOk) Kind() Kind                       { return KindSendMessageOk }
func (SendMessageFailedSenderNotLogged) Kind() Kind    { return KindSendMessageFailedSenderNotLogged }
func (SendMessageFailedRecipientNotLogged) Kind() Kind { return KindSendMessageFailedRecipientNotLogged }

func (m LoginRequest) appendFields(b []byte) []byte  { return protowire.AppendString(b, m.User) }
func (m LogoutRequest) appendFields(b []byte) []byte { return protowire.AppendString(b, m.User) }
func (m LoginEvent) appendFields(b []byte) []byte    { return protowire.AppendString(b, m.User) }
func (m LogoutEvent) appendFields(b []byte) []byte   { return protowire.AppendString(b, m.User) }

func (m MessageFromUserToUser) appendFields(b []byte) []byte {
	b = protowire.AppendString(b, m.Sender)
	b = protowire.AppendString(b, m.Recipient)
	return protowire.AppendString(b, m.Text)
}

func (LoginOk) appendFields(b []byte) []byte                             { return b }
func (LoginFailed) appendFields(b []byte) []byte                         { return b }
func (LogoutOk) appendFields(b []byte) []byte                            { return b }
func (LogoutFailed) appendFields(b []byte) []byte                        { return b }
func (SendMessageOk) appendFields(b []byte) []byte                       { return b }
func (SendMessageFailedSenderNotLogged) appendFields(b []byte) []byte    { return b }
func (SendMessageFailedRecipientNotLogged) appendFields(b []byte) []byte { return b }

// Encode encodes the message into its wire representation.
func Encode(m Message) []byte {
	return Append(nil, m)
}

// Append appends the wire representation of m to dst.
func Append(dst []byte, m Message) []byte {
	dst = append(dst, byte(m.Kind()))
	return m.appendFields(dst)
}

var (
	// ErrEmpty is returned when there is no tag byte to decode.
	ErrEmpty = errors.New("protocol: empty message")
	// ErrUnknownKind is returned for a tag byte outside the known kinds.
	ErrUnknownKind = errors.New("protocol: unknown message kind")
	// ErrTruncated is returned when a length-prefixed field runs past the input.
	ErrTruncated = errors.New("protocol: truncated field")
)

// DecodeError describes why a buffer could not be decoded.
type DecodeError struct {
	Kind Kind
	// Offset is the position in the input where decoding stopped.
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	if errors.Is(e.Err, ErrEmpty) {
		return e.Err.Error()
	}
	return fmt.Sprintf("decode %s at offset %d: %v", e.Kind, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode decodes one message from data. Bytes after the last field of the
// variant are ignored.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: ErrEmpty}
	}

	d := decoder{kind: Kind(data[0]), buf: data, off: 1}

	switch d.kind {
	case KindLoginRequest:
		m := LoginRequest{User: d.readString()}
		return d.result(m)
	case KindLogoutRequest:
		m := LogoutRequest{User: d.readString()}
		return d.result(m)
	case KindLoginEvent:
		m := LoginEvent{User: d.readString()}
		return d.result(m)
	case KindLogoutEvent:
		m := LogoutEvent{User: d.readString()}
		return d.result(m)
	case KindMessageFromUserToUser:
		var m MessageFromUserToUser
		m.Sender = d.readString()
		m.Recipient = d.readString()
		m.Text = d.readString()
		return d.result(m)
	case KindLoginOk:
		return LoginOk{}, nil
	case KindLoginFailed:
		return LoginFailed{}, nil
	case KindLogoutOk:
		return LogoutOk{}, nil
	case KindLogoutFailed:
		return LogoutFailed{}, nil
	case KindSendMessageOk:
		return SendMessageOk{}, nil
	case KindSendMessageFailedSenderNotLogged:
		return SendMessageFailedSenderNotLogged{}, nil
	case KindSendMessageFailedRecipientNotLogged:
		return SendMessageFailedRecipientNotLogged{}, nil
	default:
		return nil, &DecodeError{Kind: d.kind, Offset: 0, Err: ErrUnknownKind}
	}
}

// decoder reads consecutive string fields and remembers the first failure.
type decoder struct {
	kind Kind
	buf  []byte
	off  int
	err  error
}

func (d *decoder) readString() string {
	if d.err != nil {
		return ""
	}
	s, n := protowire.ConsumeString(d.buf[d.off:])
	if n < 0 {
		d.err = &DecodeError{
			Kind:   d.kind,
			Offset: d.off,
			Err:    fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n)),
		}
		return ""
	}
	d.off += n
	return s
}

func (d *decoder) result(m Message) (Message, error) {
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}
