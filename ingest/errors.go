package ingest

import (
	"errors"
	"fmt"
)

// ErrTooManyConnections is the cause recorded for refused connections.
var ErrTooManyConnections = errors.New("too many connections")

// ErrNotListening is returned by Serve before Listen succeeds.
var ErrNotListening = errors.New("ingest server is not listening")

// ConnErrorKind classifies why a connection ended abnormally.
type ConnErrorKind int

const (
	// ConnErrorProtocol indicates a frame that can never become valid.
	ConnErrorProtocol ConnErrorKind = iota
	// ConnErrorTimeout indicates the peer stayed idle past IdleTimeout.
	ConnErrorTimeout
	// ConnErrorExhausted indicates the server refused work (inbox full).
	ConnErrorExhausted
	// ConnErrorTransport indicates a socket error (reset, deadline setup).
	ConnErrorTransport
)

func (k ConnErrorKind) String() string {
	switch k {
	case ConnErrorProtocol:
		return "protocol"
	case ConnErrorTimeout:
		return "timeout"
	case ConnErrorExhausted:
		return "exhausted"
	case ConnErrorTransport:
		return "transport"
	default:
		return fmt.Sprintf("conn_error(%d)", int(k))
	}
}

// ConnError is the outcome of a connection that ended abnormally.
// It only ever affects the connection that produced it.
type ConnError struct {
	Kind   ConnErrorKind
	Remote string
	Err    error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Remote, e.Kind, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

func isKind(err error, kind ConnErrorKind) bool {
	var connErr *ConnError
	if errors.As(err, &connErr) {
		return connErr.Kind == kind
	}
	return false
}

// IsProtocolError returns true if the connection sent a malformed frame.
func IsProtocolError(err error) bool { return isKind(err, ConnErrorProtocol) }

// IsTimeoutError returns true if the connection was reclaimed as idle.
func IsTimeoutError(err error) bool { return isKind(err, ConnErrorTimeout) }

// IsExhaustedError returns true if the server refused the notification.
func IsExhaustedError(err error) bool { return isKind(err, ConnErrorExhausted) }

// IsTransportError returns true if the socket itself failed.
func IsTransportError(err error) bool { return isKind(err, ConnErrorTransport) }
