// Package protocol implements the wire format shared by server and client:
// bare JSON objects concatenated on a byte stream with no length prefix or
// delimiter.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultMaxFrameBytes bounds the buffered, not yet decoded input of one
// connection when no explicit limit is configured.
const DefaultMaxFrameBytes = 1 << 20

// ErrFrameTooLarge is returned when the pending input exceeds the frame limit
// without yielding a complete value.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// ErrNotObject is returned when a top-level value is not a JSON object.
var ErrNotObject = errors.New("top-level value is not an object")

// ProtocolError reports structurally invalid input. The connection that
// produced it cannot be resynchronized and must be closed.
type ProtocolError struct {
	Offset int64
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error at offset %d: %v", e.Offset, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Framer reconstructs complete JSON values from an arbitrarily chunked byte
// stream. A Framer belongs to one connection and is not safe for concurrent use.
//
// Feed scans each byte once: a running bracket depth, outside of string
// literals, finds where the pending value ends, and only that value is handed
// to the JSON decoder for validation.
type Framer struct {
	buf      []byte
	max      int
	consumed int64

	// Scan state for the value at the front of buf.
	scanned  int
	depth    int
	inString bool
	escaped  bool
}

// NewFramer returns a Framer that buffers at most maxBytes of undecoded input.
//
// Postcondition: maxBytes <= 0 selects DefaultMaxFrameBytes.
func NewFramer(maxBytes int) *Framer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	return &Framer{max: maxBytes}
}

// Feed appends chunk to the pending input and returns every complete value
// now available, in stream order.
//
// Postcondition: An incomplete trailing value is retained, never reported as
// an error. Values decoded before a failure are returned alongside the error.
// After an error the Framer must be Reset before reuse.
func (f *Framer) Feed(chunk []byte) ([]json.RawMessage, error) {
	f.buf = append(f.buf, chunk...)
	var out []json.RawMessage
	for {
		if f.scanned == 0 {
			f.trimSpace()
			if len(f.buf) == 0 {
				return out, nil
			}
			if f.buf[0] != '{' {
				return out, &ProtocolError{Offset: f.consumed, Err: ErrNotObject}
			}
		}
		end, ok := f.scan()
		if !ok {
			if len(f.buf) > f.max {
				return out, &ProtocolError{Offset: f.consumed, Err: ErrFrameTooLarge}
			}
			return out, nil
		}

		var raw json.RawMessage
		if err := json.Unmarshal(f.buf[:end], &raw); err != nil {
			return out, &ProtocolError{Offset: f.consumed, Err: err}
		}
		out = append(out, raw)
		f.consumed += int64(end)
		f.buf = append(f.buf[:0:0], f.buf[end:]...)
		f.scanned, f.depth = 0, 0
	}
}

// scan advances over unscanned bytes of the front value. It reports the
// length of the value once its closing bracket is seen.
func (f *Framer) scan() (int, bool) {
	for ; f.scanned < len(f.buf); f.scanned++ {
		c := f.buf[f.scanned]
		if f.inString {
			switch {
			case f.escaped:
				f.escaped = false
			case c == '\\':
				f.escaped = true
			case c == '"':
				f.inString = false
			}
			continue
		}
		switch c {
		case '"':
			f.inString = true
		case '{', '[':
			f.depth++
		case '}', ']':
			f.depth--
			if f.depth == 0 {
				f.scanned++
				return f.scanned, true
			}
		}
	}
	return 0, false
}

// Buffered returns the number of bytes held awaiting completion.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards all pending input.
func (f *Framer) Reset() {
	f.buf = nil
	f.consumed = 0
	f.scanned, f.depth = 0, 0
	f.inString, f.escaped = false, false
}

func (f *Framer) trimSpace() {
	i := 0
	for i < len(f.buf) && isSpace(f.buf[i]) {
		i++
	}
	if i > 0 {
		f.consumed += int64(i)
		f.buf = f.buf[i:]
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
