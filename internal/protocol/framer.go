package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var (
	ErrBodyTooLarge       = errors.New("body exceeds maximum size")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

// FramingError reports a header or body that could not be read in full or
// violates the frame limits. The connection it came from must be dropped.
type FramingError struct {
	Op  string
	Err error
}

func (e *FramingError) Error() string {
	return "framing: " + e.Op + ": " + e.Err.Error()
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// Message is a fully read request: its header and exactly Header.Length body bytes.
type Message struct {
	Header Header
	body   bytes.Buffer
}

// Body returns a reader positioned at the start of the body.
func (m *Message) Body() io.Reader {
	return bytes.NewReader(m.body.Bytes())
}

func (m *Message) BodyBytes() []byte {
	return m.body.Bytes()
}

// ReadMessage reads one frame from r in two phases: the fixed header, then
// exactly the declared number of body bytes. Nothing is parsed from the body.
// A maxBody of zero disables the size limit.
func ReadMessage(r io.Reader, maxBody uint32) (*Message, error) {
	var hdr [HeaderLength]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, &FramingError{Op: "read header", Err: err}
	}
	h, err := DecodeHeader(hdr[:])
	if err != nil {
		return nil, &FramingError{Op: "decode header", Err: err}
	}
	if h.Version != ProtocolVersion {
		return nil, &FramingError{Op: "decode header", Err: fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)}
	}
	if maxBody > 0 && h.Length > maxBody {
		return nil, &FramingError{Op: "decode header", Err: fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, h.Length, maxBody)}
	}

	// The buffer grows with the bytes actually received rather than the
	// declared length.
	msg := &Message{Header: h}
	n, err := io.CopyN(&msg.body, r, int64(h.Length))
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, &FramingError{Op: "read body", Err: fmt.Errorf("got %d of %d bytes: %w", n, h.Length, err)}
	}
	return msg, nil
}

// ReadBody reads exactly h.Length bytes from r.
func ReadBody(r io.Reader, h Header) ([]byte, error) {
	body := make([]byte, h.Length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// WriteMessage writes a header for typ and body in a single write.
func WriteMessage(w io.Writer, typ MessageType, body []byte) error {
	buf := make([]byte, HeaderLength+len(body))
	Header{Version: ProtocolVersion, Type: typ, Length: uint32(len(body))}.Encode(buf)
	copy(buf[HeaderLength:], body)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
