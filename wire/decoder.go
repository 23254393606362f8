package wire

import (
	"errors"
	"fmt"
	"io"
)

// maxEmptyReads bounds consecutive (0, nil) reads before giving up.
const maxEmptyReads = 100

// Decoder reads frames from a byte stream.
//
// It owns a single buffer of MaxFrameSize bytes, allocated once and
// reused for every frame. Because Decode rejects oversized lengths from
// the header alone, a hostile peer can never make the buffer grow.
type Decoder struct {
	reader  io.Reader
	buf     []byte
	start   int
	end     int
	readErr error
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		reader: r,
		buf:    make([]byte, MaxFrameSize),
	}
}

// ReadFrame reads the next frame.
//
// Errors:
//   - io.EOF: stream ended cleanly between frames
//   - *ProtocolError: malformed input, including ErrorTruncated when the
//     stream ends mid-frame
//   - any other error: returned as-is from the underlying reader
//     (deadline expiry, connection reset)
func (d *Decoder) ReadFrame() (Frame, error) {
	emptyReads := 0
	for {
		if d.start < d.end {
			frame, n, err := Decode(d.buf[d.start:d.end])
			if err == nil {
				d.consume(n)
				return frame, nil
			}
			if !errors.Is(err, ErrIncomplete) {
				return Frame{}, err
			}
		}

		if d.readErr != nil {
			return Frame{}, d.terminalError()
		}

		d.compact()
		n, err := d.reader.Read(d.buf[d.end:])
		d.end += n
		if err != nil {
			d.readErr = err
			continue
		}
		if n == 0 {
			emptyReads++
			if emptyReads >= maxEmptyReads {
				d.readErr = io.ErrNoProgress
			}
			continue
		}
		emptyReads = 0
	}
}

// Buffered returns the number of bytes read but not yet consumed.
func (d *Decoder) Buffered() int {
	return d.end - d.start
}

func (d *Decoder) consume(n int) {
	d.start += n
	if d.start == d.end {
		d.start, d.end = 0, 0
	}
}

// compact moves unconsumed bytes to the front of the buffer. A partial
// frame always fits because its declared length was already checked.
func (d *Decoder) compact() {
	if d.start == 0 {
		return
	}
	copy(d.buf, d.buf[d.start:d.end])
	d.end -= d.start
	d.start = 0
}

func (d *Decoder) terminalError() error {
	if !errors.Is(d.readErr, io.EOF) {
		return d.readErr
	}
	if d.start == d.end {
		return io.EOF
	}
	return &ProtocolError{
		Kind: ErrorTruncated,
		Msg:  fmt.Sprintf("stream ended with %d bytes of an incomplete frame", d.end-d.start),
		Err:  io.ErrUnexpectedEOF,
	}
}
