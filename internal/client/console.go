package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omochice/relay-chat/pkg/protocol"
)

// ErrSyntax is returned for console lines with missing arguments.
var ErrSyntax = errors.New("syntax error")

// Console commands.
const (
	CommandLogin  = "login"
	CommandLogout = "logout"
	CommandMsg    = "msg"
	CommandQuit   = "quit"
)

// Command is one parsed console line.
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses lines like "login alice", "logout alice",
// "msg alice bob some text" and "quit". Names are case-insensitive and the
// message text keeps its inner spaces.
func ParseCommand(line string) (Command, error) {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 4)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case CommandLogin, CommandLogout:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: usage %s <user>", ErrSyntax, name)
		}
	case CommandMsg:
		if len(args) != 3 {
			return Command{}, fmt.Errorf("%w: usage msg <from> <to> <text>", ErrSyntax)
		}
	case CommandQuit, "exit":
		return Command{Name: CommandQuit}, nil
	case "":
		return Command{}, fmt.Errorf("%w: empty command", ErrSyntax)
	default:
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
	return Command{Name: name, Args: args}, nil
}

// Execute sends the request matching cmd. Quit sends nothing.
func (c *Client) Execute(ctx context.Context, cmd Command) error {
	switch cmd.Name {
	case CommandLogin:
		return c.Login(ctx, cmd.Args[0])
	case CommandLogout:
		return c.Logout(ctx, cmd.Args[0])
	case CommandMsg:
		return c.SendMessage(ctx, cmd.Args[0], cmd.Args[1], cmd.Args[2])
	case CommandQuit:
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd.Name)
	}
}

// Describe renders a server message for the console.
func Describe(msg protocol.Message) string {
	switch m := msg.(type) {
	case protocol.LoginOk:
		return "Login ok"
	case protocol.LoginFailed:
		return "Login failed"
	case protocol.LoginEvent:
		return fmt.Sprintf("*** %s logged in ***", m.User)
	case protocol.LogoutOk:
		return "Logout ok"
	case protocol.LogoutFailed:
		return "Logout failed"
	case protocol.LogoutEvent:
		return fmt.Sprintf("*** %s logged out ***", m.User)
	case protocol.MessageFromUserToUser:
		return fmt.Sprintf("[%s]: %s", m.Sender, m.Text)
	case protocol.SendMessageOk:
		return "Message sent"
	case protocol.SendMessageFailedRecipientNotLogged:
		return "Recipient not logged"
	case protocol.SendMessageFailedSenderNotLogged:
		return "You're not logged"
	default:
		return msg.Kind().String()
	}
}
