package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/pithecene-io/warnwin/types"
)

func TestDecoder_MultipleFramesOneByteAtATime(t *testing.T) {
	payloads := []NotifyPayload{
		{Text: "first", DurationMs: 1000, Urgency: types.UrgencyLow},
		{Text: "second", DurationMs: 2000, Urgency: types.UrgencyHigh, Sender: "b"},
		{Text: "third", DurationMs: 3000, Urgency: types.UrgencyCritical},
	}

	var stream bytes.Buffer
	for _, p := range payloads {
		if err := WriteNotify(&stream, p); err != nil {
			t.Fatalf("WriteNotify failed: %v", err)
		}
	}

	decoder := NewDecoder(iotest.OneByteReader(&stream))
	for i, want := range payloads {
		frame, err := decoder.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: ReadFrame failed: %v", i, err)
		}
		if frame.Notify != want {
			t.Errorf("frame %d: payload = %+v, want %+v", i, frame.Notify, want)
		}
	}

	if _, err := decoder.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after last frame, got %v", err)
	}
}

func TestDecoder_EmptyStream(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader(nil)).ReadFrame()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestDecoder_DataErrReader(t *testing.T) {
	encoded, _ := Encode(NotifyPayload{Text: "eof with data", DurationMs: 5, Urgency: types.UrgencyNormal})
	decoder := NewDecoder(iotest.DataErrReader(bytes.NewReader(encoded)))

	frame, err := decoder.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if frame.Notify.Text != "eof with data" {
		t.Errorf("Text = %q", frame.Notify.Text)
	}
	if _, err := decoder.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestDecoder_TruncatedHeader(t *testing.T) {
	// Five bytes is less than a full header.
	decoder := NewDecoder(bytes.NewReader([]byte{'W', 'A', 'R', 'N', 1}))
	_, err := decoder.ReadFrame()

	kind, ok := ProtocolErrorKind(err)
	if !ok || kind != ErrorTruncated {
		t.Fatalf("expected truncated protocol error, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated error should wrap io.ErrUnexpectedEOF: %v", err)
	}
}

func TestDecoder_TruncatedPayload(t *testing.T) {
	encoded, _ := Encode(NotifyPayload{Text: "cut short", DurationMs: 5, Urgency: types.UrgencyNormal})
	decoder := NewDecoder(bytes.NewReader(encoded[:len(encoded)-2]))

	_, err := decoder.ReadFrame()
	if kind, ok := ProtocolErrorKind(err); !ok || kind != ErrorTruncated {
		t.Fatalf("expected truncated protocol error, got %v", err)
	}
}

// headerOnlyReader serves a header and records any attempt to read further.
type headerOnlyReader struct {
	data      []byte
	overreads int
}

func (r *headerOnlyReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		r.overreads++
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestDecoder_OversizedLengthRejectedFromHeader(t *testing.T) {
	reader := &headerOnlyReader{data: header(ProtocolVersion, KindNotify, 1<<30)}
	decoder := NewDecoder(reader)
	bufBefore := cap(decoder.buf)

	_, err := decoder.ReadFrame()
	if kind, ok := ProtocolErrorKind(err); !ok || kind != ErrorPayloadTooLarge {
		t.Fatalf("expected payload_too_large, got %v", err)
	}
	if reader.overreads != 0 {
		t.Errorf("decoder attempted %d reads past the header", reader.overreads)
	}
	if cap(decoder.buf) != bufBefore || bufBefore != MaxFrameSize {
		t.Errorf("decoder buffer grew: cap %d, want %d", cap(decoder.buf), MaxFrameSize)
	}
}

func TestDecoder_BadMagicFailsFast(t *testing.T) {
	reader := &headerOnlyReader{data: []byte("HELO")}
	_, err := NewDecoder(iotest.OneByteReader(reader)).ReadFrame()
	if kind, ok := ProtocolErrorKind(err); !ok || kind != ErrorBadMagic {
		t.Fatalf("expected bad_magic, got %v", err)
	}
	if len(reader.data) != 3 {
		t.Errorf("decoder read %d bytes past the first bad byte", 3-len(reader.data))
	}
}

func TestDecoder_ReusesBuffer(t *testing.T) {
	var stream bytes.Buffer
	for i := 0; i < 50; i++ {
		_ = WriteNotify(&stream, NotifyPayload{Text: "reuse", DurationMs: uint32(i), Urgency: types.UrgencyNormal})
	}

	decoder := NewDecoder(&stream)
	first := &decoder.buf[0]
	for i := 0; i < 50; i++ {
		frame, err := decoder.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if frame.Notify.DurationMs != uint32(i) {
			t.Fatalf("frame %d: DurationMs = %d", i, frame.Notify.DurationMs)
		}
	}
	if &decoder.buf[0] != first {
		t.Error("decoder reallocated its buffer")
	}
	if decoder.Buffered() != 0 {
		t.Errorf("Buffered() = %d after draining", decoder.Buffered())
	}
}

func TestDecoder_TransportErrorPassesThrough(t *testing.T) {
	sentinel := errors.New("deadline exceeded")
	_, err := NewDecoder(iotest.ErrReader(sentinel)).ReadFrame()
	if !errors.Is(err, sentinel) {
		t.Errorf("expected transport error, got %v", err)
	}
	if IsProtocolError(err) {
		t.Error("transport errors must not be classified as protocol errors")
	}
}

// zeroReader always returns (0, nil).
type zeroReader struct{}

func (zeroReader) Read([]byte) (int, error) { return 0, nil }

func TestDecoder_NoProgress(t *testing.T) {
	_, err := NewDecoder(zeroReader{}).ReadFrame()
	if !errors.Is(err, io.ErrNoProgress) {
		t.Errorf("expected io.ErrNoProgress, got %v", err)
	}
}
