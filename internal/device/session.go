// Package device provides remote command sessions to network devices.
//
// A Dialer opens a Session to a device address. A Session runs CLI commands
// and returns their text output. SSHDialer implements both for Cisco IOS
// style devices over an interactive SSH shell.
package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Dialer opens sessions to devices.
type Dialer interface {
	Dial(ctx context.Context, address string) (Session, error)
}

// Session is an open command session on one device. It is used by a single
// goroutine.
type Session interface {
	// Enable enters privileged command mode.
	Enable(ctx context.Context) error
	// Run sends one command and returns its output without the echoed
	// command line or the trailing prompt.
	Run(ctx context.Context, command string) (string, error)
	// Close tears the session down.
	Close() error
}

// ConnectReason classifies a failure to open a session.
type ConnectReason string

const (
	ReasonTimeout   ConnectReason = "timeout"
	ReasonAuth      ConnectReason = "auth"
	ReasonTransport ConnectReason = "transport"
)

// ConnectError is returned by Dial when no session could be established.
type ConnectError struct {
	Address string
	Reason  ConnectReason
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s error connecting to %s: %v", e.Reason, e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// CommandError is returned when a command cannot be sent, times out or is
// rejected by the device.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("command %q failed: %v: %s", e.Command, e.Err, e.Output)
	}
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ErrRejected is wrapped by CommandError when the device answers with a CLI
// error such as "% Invalid input detected".
var ErrRejected = errors.New("rejected by device")

// classifyConnect maps a dial or handshake error to a ConnectReason.
func classifyConnect(err error) ConnectReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonTimeout
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return ReasonAuth
	}
	return ReasonTransport
}
