package wire

import (
	"errors"
	"fmt"
)

// ErrIncomplete is returned by Decode when the buffer holds a valid prefix
// of a frame and more bytes must be read. It is not a protocol error.
var ErrIncomplete = errors.New("incomplete frame")

// ErrorKind classifies protocol errors.
type ErrorKind int

const (
	// ErrorBadMagic indicates the stream does not start with Magic.
	ErrorBadMagic ErrorKind = iota
	// ErrorUnsupportedVersion indicates a frame version other than ProtocolVersion.
	ErrorUnsupportedVersion
	// ErrorUnsupportedKind indicates a reserved frame kind.
	ErrorUnsupportedKind
	// ErrorPayloadTooLarge indicates payload_length exceeds MaxPayloadSize.
	ErrorPayloadTooLarge
	// ErrorMalformed indicates payload fields inconsistent with payload_length.
	ErrorMalformed
	// ErrorInvalidText indicates a text field that is not valid UTF-8.
	ErrorInvalidText
	// ErrorTruncated indicates the stream ended in the middle of a frame.
	ErrorTruncated
)

var errorKindNames = map[ErrorKind]string{
	ErrorBadMagic:           "bad_magic",
	ErrorUnsupportedVersion: "unsupported_version",
	ErrorUnsupportedKind:    "unsupported_kind",
	ErrorPayloadTooLarge:    "payload_too_large",
	ErrorMalformed:          "malformed",
	ErrorInvalidText:        "invalid_text",
	ErrorTruncated:          "truncated",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error_kind(%d)", int(k))
}

// ProtocolError is a frame that can never become valid. The connection
// that produced it must be closed.
type ProtocolError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError returns true if err is or wraps a *ProtocolError.
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}

// ProtocolErrorKind returns the kind of a wrapped *ProtocolError.
func ProtocolErrorKind(err error) (ErrorKind, bool) {
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.Kind, true
	}
	return 0, false
}

func protocolErrorf(kind ErrorKind, format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
