// Package transport opens line-oriented sessions to devices over a serial
// port or a TCP socket. Both variants share the Session interface; the only
// branch on connection type is the dialer lookup in Opener.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type State int

const (
	StateUnopened State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unopened"
	}
}

// Session is an open link to one device. Send and Receive never retry.
type Session interface {
	// Send writes one frame. The ctx deadline bounds the write.
	Send(ctx context.Context, frame []byte) error
	// Receive returns the next line sent by the device, without the trailing
	// newline, or ErrTimeout once timeout elapses.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	// Close releases the link. It is idempotent and always returns nil.
	Close() error
	State() State
	// LastActivity is the time of the last successful open, send or receive.
	LastActivity() time.Time
}

var (
	ErrTimeout = errors.New("timed out")
	ErrClosed  = errors.New("session closed")
)

type Reason string

const (
	ReasonUnsupported Reason = "transport unavailable"
	ReasonPermission  Reason = "permission denied"
	ReasonUnreachable Reason = "unreachable"
	ReasonTimeout     Reason = "timed out"
	ReasonAddress     Reason = "invalid address"
	ReasonBusy        Reason = "in use"
)

// ConnectionError reports a failed open.
type ConnectionError struct {
	Reason  Reason
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("connect %q: %s", e.Address, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IOError reports a failed send or receive on an open session.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
