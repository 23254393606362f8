package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/pithecene-io/warnwin/types"
)

// ErrInvalidPayload is returned by Encode for payloads that cannot be
// represented on the wire.
var ErrInvalidPayload = errors.New("invalid notify payload")

// Validate checks that p can be encoded.
func (p NotifyPayload) Validate() error {
	if len(p.Text) > MaxTextBytes {
		return fmt.Errorf("%w: text is %d bytes, maximum %d", ErrInvalidPayload, len(p.Text), MaxTextBytes)
	}
	if !utf8.ValidString(p.Text) {
		return fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidPayload)
	}
	if len(p.Sender) > MaxSenderBytes {
		return fmt.Errorf("%w: sender is %d bytes, maximum %d", ErrInvalidPayload, len(p.Sender), MaxSenderBytes)
	}
	if !utf8.ValidString(p.Sender) {
		return fmt.Errorf("%w: sender is not valid UTF-8", ErrInvalidPayload)
	}
	if !p.Urgency.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidPayload, p.Urgency)
	}
	return nil
}

// payloadSize returns the encoded payload length of p.
func (p NotifyPayload) payloadSize() int {
	size := textLengthSize + len(p.Text) + durationSize + urgencySize
	if p.Sender != "" {
		size += senderLenSize + len(p.Sender)
	}
	return size
}

// Encode returns the complete Notify frame for p.
// Urgency is always written; the sender field only when non-empty.
func Encode(p NotifyPayload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	payloadLen := p.payloadSize()
	buf := make([]byte, HeaderSize+payloadLen)

	copy(buf, Magic[:])
	buf[4] = ProtocolVersion
	buf[5] = byte(KindNotify)
	binary.BigEndian.PutUint32(buf[6:HeaderSize], uint32(payloadLen))

	off := HeaderSize
	binary.BigEndian.PutUint16(buf[off:], uint16(len(p.Text)))
	off += textLengthSize
	off += copy(buf[off:], p.Text)
	binary.BigEndian.PutUint32(buf[off:], p.DurationMs)
	off += durationSize
	buf[off] = byte(p.Urgency)
	off += urgencySize
	if p.Sender != "" {
		buf[off] = byte(len(p.Sender))
		off += senderLenSize
		copy(buf[off:], p.Sender)
	}

	return buf, nil
}

// WriteNotify encodes p and writes the frame to w.
func WriteNotify(w io.Writer, p NotifyPayload) error {
	frame, err := Encode(p)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write notify frame: %w", err)
	}
	return nil
}

// Decode decodes the frame at the start of buf.
//
// Header fields are validated as soon as they are available, so a bad
// magic, version, kind or an oversized payload_length is reported before
// any payload byte arrives. When buf holds a valid but partial frame,
// Decode returns ErrIncomplete. On success it returns the frame and the
// number of bytes consumed.
func Decode(buf []byte) (Frame, int, error) {
	for i := 0; i < len(Magic) && i < len(buf); i++ {
		if buf[i] != Magic[i] {
			return Frame{}, 0, protocolErrorf(ErrorBadMagic, "bad magic byte 0x%02x at offset %d", buf[i], i)
		}
	}
	if len(buf) <= 4 {
		return Frame{}, 0, ErrIncomplete
	}

	version := buf[4]
	if version != ProtocolVersion {
		return Frame{}, 0, protocolErrorf(ErrorUnsupportedVersion, "unsupported protocol version %d (want %d)", version, ProtocolVersion)
	}
	if len(buf) <= 5 {
		return Frame{}, 0, ErrIncomplete
	}

	kind := Kind(buf[5])
	if kind != KindNotify {
		return Frame{}, 0, protocolErrorf(ErrorUnsupportedKind, "unsupported frame kind %d", uint8(kind))
	}
	if len(buf) < HeaderSize {
		return Frame{}, 0, ErrIncomplete
	}

	length := binary.BigEndian.Uint32(buf[6:HeaderSize])
	if length > MaxPayloadSize {
		return Frame{}, 0, protocolErrorf(ErrorPayloadTooLarge, "payload size %d exceeds maximum %d", length, MaxPayloadSize)
	}

	total := HeaderSize + int(length)
	if len(buf) < total {
		return Frame{}, 0, ErrIncomplete
	}

	notify, err := parseNotify(buf[HeaderSize:total])
	if err != nil {
		return Frame{}, 0, err
	}

	return Frame{
		Version: version,
		Kind:    kind,
		Length:  length,
		Notify:  notify,
	}, total, nil
}

// parseNotify decodes a complete Notify payload. Strings are copied out
// of p so the caller may reuse the buffer.
func parseNotify(p []byte) (NotifyPayload, error) {
	if len(p) < minNotifySize {
		return NotifyPayload{}, protocolErrorf(ErrorMalformed, "notify payload is %d bytes, minimum %d", len(p), minNotifySize)
	}

	textLen := int(binary.BigEndian.Uint16(p))
	if textLen > MaxTextBytes {
		return NotifyPayload{}, protocolErrorf(ErrorMalformed, "text length %d exceeds maximum %d", textLen, MaxTextBytes)
	}
	off := textLengthSize
	if len(p) < off+textLen+durationSize {
		return NotifyPayload{}, protocolErrorf(ErrorMalformed, "text length %d overruns payload of %d bytes", textLen, len(p))
	}

	text := p[off : off+textLen]
	if !utf8.Valid(text) {
		return NotifyPayload{}, protocolErrorf(ErrorInvalidText, "text is not valid UTF-8")
	}
	off += textLen

	out := NotifyPayload{
		Text:       string(text),
		DurationMs: binary.BigEndian.Uint32(p[off:]),
		Urgency:    types.UrgencyNormal,
	}
	off += durationSize

	if off < len(p) {
		// Unknown tiers display as normal rather than rejecting the frame.
		if u := types.Urgency(p[off]); u.Valid() {
			out.Urgency = u
		}
		off += urgencySize
	}

	if off < len(p) {
		senderLen := int(p[off])
		off += senderLenSize
		if senderLen > MaxSenderBytes {
			return NotifyPayload{}, protocolErrorf(ErrorMalformed, "sender length %d exceeds maximum %d", senderLen, MaxSenderBytes)
		}
		if len(p) < off+senderLen {
			return NotifyPayload{}, protocolErrorf(ErrorMalformed, "sender length %d overruns payload of %d bytes", senderLen, len(p))
		}
		sender := p[off : off+senderLen]
		if !utf8.Valid(sender) {
			return NotifyPayload{}, protocolErrorf(ErrorInvalidText, "sender is not valid UTF-8")
		}
		out.Sender = string(sender)
		off += senderLen
	}

	if off != len(p) {
		return NotifyPayload{}, protocolErrorf(ErrorMalformed, "%d trailing bytes after notify payload", len(p)-off)
	}

	return out, nil
}
