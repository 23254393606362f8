package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/pithecene-io/warnwin/types"
)

// header builds a frame header with the given fields.
func header(version uint8, kind Kind, length uint32) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, Magic[:])
	buf[4] = version
	buf[5] = byte(kind)
	binary.BigEndian.PutUint32(buf[6:], length)
	return buf
}

// rawNotify builds a Notify frame from a hand-assembled payload.
func rawNotify(payload []byte) []byte {
	return append(header(ProtocolVersion, KindNotify, uint32(len(payload))), payload...)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload NotifyPayload
	}{
		{"simple", NotifyPayload{Text: "build failed", DurationMs: 3000, Urgency: types.UrgencyHigh}},
		{"empty text", NotifyPayload{Text: "", DurationMs: 1, Urgency: types.UrgencyLow}},
		{"with sender", NotifyPayload{Text: "deploy ok", DurationMs: 5000, Urgency: types.UrgencyNormal, Sender: "ci-runner"}},
		{"multibyte", NotifyPayload{Text: "ビルド失敗 ✗", DurationMs: 0, Urgency: types.UrgencyCritical, Sender: "Zoë"}},
		{"max text", NotifyPayload{Text: strings.Repeat("x", MaxTextBytes), DurationMs: ^uint32(0), Urgency: types.UrgencyNormal}},
		{"max sender", NotifyPayload{Text: "t", DurationMs: 10, Urgency: types.UrgencyLow, Sender: strings.Repeat("s", MaxSenderBytes)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.payload)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			frame, n, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if n != len(encoded) {
				t.Errorf("consumed %d bytes, want %d", n, len(encoded))
			}
			if frame.Kind != KindNotify {
				t.Errorf("Kind = %v, want notify", frame.Kind)
			}
			if frame.Version != ProtocolVersion {
				t.Errorf("Version = %d, want %d", frame.Version, ProtocolVersion)
			}
			if frame.Notify != tt.payload {
				t.Errorf("payload = %+v, want %+v", frame.Notify, tt.payload)
			}
		})
	}
}

func TestEncode_Layout(t *testing.T) {
	encoded, err := Encode(NotifyPayload{Text: "hi", DurationMs: 258, Urgency: types.UrgencyHigh})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := []byte{
		'W', 'A', 'R', 'N', // magic
		1,          // version
		1,          // kind
		0, 0, 0, 9, // payload length
		0, 2, 'h', 'i', // text
		0, 0, 1, 2, // duration_ms
		2, // urgency
	}
	if !bytes.Equal(encoded, want) {
		t.Errorf("Encode layout\n got  %v\n want %v", encoded, want)
	}
}

func TestEncode_RejectsUnrepresentable(t *testing.T) {
	tests := []struct {
		name    string
		payload NotifyPayload
	}{
		{"text too long", NotifyPayload{Text: strings.Repeat("x", MaxTextBytes+1)}},
		{"sender too long", NotifyPayload{Text: "t", Sender: strings.Repeat("s", MaxSenderBytes+1)}},
		{"invalid text", NotifyPayload{Text: "\xff\xfe"}},
		{"invalid sender", NotifyPayload{Text: "t", Sender: "\xc3"}},
		{"invalid urgency", NotifyPayload{Text: "t", Urgency: types.Urgency(7)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.payload)
			if !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("Encode error = %v, want ErrInvalidPayload", err)
			}
		})
	}
}

func TestDecode_Incomplete(t *testing.T) {
	encoded, err := Encode(NotifyPayload{Text: "partial", DurationMs: 1000, Urgency: types.UrgencyNormal})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	for i := 0; i < len(encoded); i++ {
		_, n, err := Decode(encoded[:i])
		if !errors.Is(err, ErrIncomplete) {
			t.Fatalf("Decode(prefix %d) error = %v, want ErrIncomplete", i, err)
		}
		if IsProtocolError(err) {
			t.Fatalf("ErrIncomplete must not be a protocol error")
		}
		if n != 0 {
			t.Fatalf("Decode(prefix %d) consumed %d bytes", i, n)
		}
	}
}

func TestDecode_ConsumesOnlyFirstFrame(t *testing.T) {
	first, _ := Encode(NotifyPayload{Text: "one", DurationMs: 1, Urgency: types.UrgencyLow})
	second, _ := Encode(NotifyPayload{Text: "two", DurationMs: 2, Urgency: types.UrgencyHigh})
	buf := append(append([]byte{}, first...), second...)

	frame, n, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if n != len(first) {
		t.Errorf("consumed %d, want %d", n, len(first))
	}
	if frame.Notify.Text != "one" {
		t.Errorf("Text = %q, want one", frame.Notify.Text)
	}
}

func TestDecode_ProtocolErrors(t *testing.T) {
	validText := []byte{0, 1, 'x', 0, 0, 0, 1}

	tests := []struct {
		name string
		buf  []byte
		kind ErrorKind
	}{
		{"bad magic first byte", []byte("GET / HTTP/1.1\r\n"), ErrorBadMagic},
		{"bad magic partial prefix", []byte{'W', 'A', 'X'}, ErrorBadMagic},
		{"unsupported version", header(2, KindNotify, 0)[:5], ErrorUnsupportedVersion},
		{"reserved kind zero", header(ProtocolVersion, 0, 0)[:6], ErrorUnsupportedKind},
		{"reserved kind", header(ProtocolVersion, 9, 0), ErrorUnsupportedKind},
		{"oversized length", header(ProtocolVersion, KindNotify, MaxPayloadSize+1), ErrorPayloadTooLarge},
		{"huge length", header(ProtocolVersion, KindNotify, ^uint32(0)), ErrorPayloadTooLarge},
		{"payload shorter than minimum", rawNotify([]byte{0, 0, 0}), ErrorMalformed},
		{"text overruns payload", rawNotify([]byte{0, 9, 'x', 0, 0, 0, 1}), ErrorMalformed},
		{"text length above maximum", rawNotify(append([]byte{0x10, 0x01}, make([]byte, 4)...)), ErrorMalformed},
		{"invalid utf8 text", rawNotify([]byte{0, 2, 0xff, 0xfe, 0, 0, 0, 1}), ErrorInvalidText},
		{"sender overruns payload", rawNotify(append(append([]byte{}, validText...), 1, 5, 'a')), ErrorMalformed},
		{"sender above maximum", rawNotify(append(append([]byte{}, validText...), 1, MaxSenderBytes+1)), ErrorMalformed},
		{"invalid utf8 sender", rawNotify(append(append([]byte{}, validText...), 1, 1, 0xc3)), ErrorInvalidText},
		{"trailing bytes", rawNotify(append(append([]byte{}, validText...), 1, 1, 'a', 'z')), ErrorMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.buf)
			if err == nil {
				t.Fatal("expected error")
			}
			kind, ok := ProtocolErrorKind(err)
			if !ok {
				t.Fatalf("error %v is not a *ProtocolError", err)
			}
			if kind != tt.kind {
				t.Errorf("kind = %v, want %v (err: %v)", kind, tt.kind, err)
			}
		})
	}
}

func TestDecode_OptionalFields(t *testing.T) {
	t.Run("urgency absent defaults to normal", func(t *testing.T) {
		frame, _, err := Decode(rawNotify([]byte{0, 1, 'x', 0, 0, 0x03, 0xe8}))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if frame.Notify.Urgency != types.UrgencyNormal {
			t.Errorf("Urgency = %v, want normal", frame.Notify.Urgency)
		}
		if frame.Notify.DurationMs != 1000 {
			t.Errorf("DurationMs = %d, want 1000", frame.Notify.DurationMs)
		}
	})

	t.Run("unknown urgency decodes as normal", func(t *testing.T) {
		frame, _, err := Decode(rawNotify([]byte{0, 1, 'x', 0, 0, 0, 1, 200}))
		if err != nil {
			t.Fatalf("unknown urgency must not be a protocol error: %v", err)
		}
		if frame.Notify.Urgency != types.UrgencyNormal {
			t.Errorf("Urgency = %v, want normal", frame.Notify.Urgency)
		}
	})

	t.Run("empty sender", func(t *testing.T) {
		frame, _, err := Decode(rawNotify([]byte{0, 1, 'x', 0, 0, 0, 1, 3, 0}))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if frame.Notify.Sender != "" || frame.Notify.Urgency != types.UrgencyCritical {
			t.Errorf("payload = %+v", frame.Notify)
		}
	})
}

func TestDecode_CopiesStrings(t *testing.T) {
	encoded, _ := Encode(NotifyPayload{Text: "stable", DurationMs: 1, Urgency: types.UrgencyNormal, Sender: "me"})
	frame, _, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for i := range encoded {
		encoded[i] = 0
	}
	if frame.Notify.Text != "stable" || frame.Notify.Sender != "me" {
		t.Errorf("decoded strings alias the input buffer: %+v", frame.Notify)
	}
}

func TestWriteNotify(t *testing.T) {
	var buf bytes.Buffer
	p := NotifyPayload{Text: "hello", DurationMs: 42, Urgency: types.UrgencyLow}
	if err := WriteNotify(&buf, p); err != nil {
		t.Fatalf("WriteNotify failed: %v", err)
	}
	frame, err := NewDecoder(&buf).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if frame.Notify != p {
		t.Errorf("payload = %+v, want %+v", frame.Notify, p)
	}
}

func TestWriteNotify_WriterError(t *testing.T) {
	err := WriteNotify(failingWriter{}, NotifyPayload{Text: "x"})
	if err == nil || !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("WriteNotify error = %v, want wrapped io.ErrClosedPipe", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }
