package protocol_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/omochice/relay-chat/pkg/protocol"
)

func allVariants() []protocol.Message {
	return []protocol.Message{
		protocol.LoginRequest{User: "alice"},
		protocol.LogoutRequest{User: "alice"},
		protocol.LoginEvent{User: "bob"},
		protocol.LogoutEvent{User: "bob"},
		protocol.MessageFromUserToUser{Sender: "alice", Recipient: "bob", Text: "hi"},
		protocol.LoginOk{},
		protocol.LoginFailed{},
		protocol.LogoutOk{},
		protocol.LogoutFailed{},
		protocol.SendMessageOk{},
		protocol.SendMessageFailedSenderNotLogged{},
		protocol.SendMessageFailedRecipientNotLogged{},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, msg := range allVariants() {
		t.Run(msg.Kind().String(), func(t *testing.T) {
			data := protocol.Encode(msg)

			got, err := protocol.Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != msg {
				t.Errorf("Decode(Encode(m)) = %#v, want %#v", got, msg)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip_EmptyAndLongStrings(t *testing.T) {
	long := strings.Repeat("x", 300)
	tests := []protocol.Message{
		protocol.LoginRequest{User: ""},
		protocol.MessageFromUserToUser{Sender: "", Recipient: "", Text: ""},
		protocol.MessageFromUserToUser{Sender: "alice", Recipient: "alice", Text: long},
		protocol.LogoutEvent{User: "ユーザー"},
	}

	for _, msg := range tests {
		got, err := protocol.Decode(protocol.Encode(msg))
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if got != msg {
			t.Errorf("Decode(Encode(m)) = %#v, want %#v", got, msg)
		}
	}
}

func TestEncode_WireFormat(t *testing.T) {
	tests := []struct {
		name string
		msg  protocol.Message
		want []byte
	}{
		{
			name: "login request",
			msg:  protocol.LoginRequest{User: "alice"},
			want: []byte{0, 5, 'a', 'l', 'i', 'c', 'e'},
		},
		{
			name: "logout request",
			msg:  protocol.LogoutRequest{User: "bo"},
			want: []byte{5, 2, 'b', 'o'},
		},
		{
			name: "message from user to user",
			msg:  protocol.MessageFromUserToUser{Sender: "a", Recipient: "b", Text: "hi"},
			want: []byte{8, 1, 'a', 1, 'b', 2, 'h', 'i'},
		},
		{
			name: "zero payload is a single tag byte",
			msg:  protocol.SendMessageFailedSenderNotLogged{},
			want: []byte{11},
		},
		{
			name: "login ok",
			msg:  protocol.LoginOk{},
			want: []byte{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := protocol.Encode(tt.msg); !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncode_LongStringUsesMultiByteLength(t *testing.T) {
	data := protocol.Encode(protocol.LoginRequest{User: strings.Repeat("u", 200)})

	// 200 = 0b1_1001000 -> 0xC8 0x01
	if data[1] != 0xC8 || data[2] != 0x01 {
		t.Errorf("length prefix = %#x %#x, want 0xc8 0x01", data[1], data[2])
	}
	if len(data) != 1+2+200 {
		t.Errorf("len(data) = %d, want %d", len(data), 203)
	}
}

func TestAppend_ReusesBuffer(t *testing.T) {
	buf := []byte{0xFF}
	buf = protocol.Append(buf, protocol.LogoutOk{})
	if !bytes.Equal(buf, []byte{0xFF, 4}) {
		t.Errorf("Append() = %v, want [255 4]", buf)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty input", []byte{}, protocol.ErrEmpty},
		{"nil input", nil, protocol.ErrEmpty},
		{"unknown tag", []byte{12}, protocol.ErrUnknownKind},
		{"unknown tag with payload", []byte{200, 1, 'a'}, protocol.ErrUnknownKind},
		{"missing length prefix", []byte{0}, protocol.ErrTruncated},
		{"length beyond input", []byte{0, 5, 'a', 'b'}, protocol.ErrTruncated},
		{"unterminated varint", []byte{0, 0x80}, protocol.ErrTruncated},
		{"second field missing", []byte{8, 1, 'a'}, protocol.ErrTruncated},
		{"third field short", []byte{8, 1, 'a', 1, 'b', 3, 'h'}, protocol.ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := protocol.Decode(tt.data)
			if err == nil {
				t.Fatalf("Decode() = %#v, want error", msg)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			var decErr *protocol.DecodeError
			if !errors.As(err, &decErr) {
				t.Errorf("Decode() error type = %T, want *protocol.DecodeError", err)
			}
		})
	}
}

func TestDecode_IgnoresTrailingBytes(t *testing.T) {
	data := append(protocol.Encode(protocol.LoginRequest{User: "alice"}), 0xAA, 0xBB)

	got, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != (protocol.LoginRequest{User: "alice"}) {
		t.Errorf("Decode() = %#v", got)
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind protocol.Kind
		want string
	}{
		{protocol.KindLoginRequest, "LOGIN_REQUEST"},
		{protocol.KindLoginOk, "LOGIN_OK"},
		{protocol.KindMessageFromUserToUser, "MESSAGE_FROM_USER_TO_USER"},
		{protocol.KindSendMessageFailedSenderNotLogged, "SEND_MESSAGE_FAILED_SENDER_NOT_LOGGED"},
		{protocol.Kind(42), "UNKNOWN(42)"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", uint8(tt.kind), got, tt.want)
		}
	}
}
