// Package wire implements the warnwin notification wire protocol.
//
// Every submission is a single frame:
//
//	[magic "WARN": 4][version: u8][kind: u8][payload_length: u32 BE][payload]
//
// A Notify payload is:
//
//	[text_length: u16 BE][text: UTF-8][duration_ms: u32 BE]
//	[urgency: u8]                      optional, defaults to normal
//	[sender_length: u8][sender: UTF-8] optional, requires urgency
//
// No field is self-describing beyond its declared length, so encoder and
// decoder must agree exactly on field order and width.
package wire

import (
	"github.com/pithecene-io/warnwin/types"
)

// Magic identifies a warnwin frame.
var Magic = [4]byte{'W', 'A', 'R', 'N'}

// ProtocolVersion is the only frame version this build speaks.
const ProtocolVersion uint8 = 1

// Frame size constants.
const (
	// HeaderSize is the fixed frame header size: magic, version, kind, length.
	HeaderSize = len(Magic) + 1 + 1 + 4
	// MaxTextBytes bounds the encoded text field.
	MaxTextBytes = 4096
	// MaxSenderBytes bounds the encoded sender field.
	MaxSenderBytes = 64
	// MaxPayloadSize is the largest payload_length a receiver accepts.
	MaxPayloadSize = 2 + MaxTextBytes + 4 + 1 + 1 + MaxSenderBytes
	// MaxFrameSize is the largest complete frame.
	MaxFrameSize = HeaderSize + MaxPayloadSize
)

// Payload layout sizes.
const (
	textLengthSize = 2
	durationSize   = 4
	urgencySize    = 1
	senderLenSize  = 1
	minNotifySize  = textLengthSize + durationSize
)

// Kind is the frame message type.
type Kind uint8

// Frame kinds. Zero and everything above KindNotify are reserved.
const (
	KindNotify Kind = 1
)

func (k Kind) String() string {
	if k == KindNotify {
		return "notify"
	}
	return "reserved"
}

// NotifyPayload is the semantic content of a Notify frame.
type NotifyPayload struct {
	Text       string
	DurationMs uint32
	Urgency    types.Urgency
	// Sender optionally names the submitting peer.
	Sender string
}

// Frame is one decoded protocol message.
type Frame struct {
	Version uint8
	Kind    Kind
	// Length is the declared payload length.
	Length uint32
	// Notify is populated when Kind is KindNotify.
	Notify NotifyPayload
}
