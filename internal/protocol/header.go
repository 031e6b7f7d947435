// Package protocol implements the skyd wire format: a fixed 12-byte header
// followed by exactly Length body bytes.
//
// Header layout, big-endian:
//
//	offset 0  uint32  version (ProtocolVersion)
//	offset 4  uint32  message type
//	offset 8  uint32  body length in bytes
//
// Responses reuse the layout with ResponseFlag set on the request's type.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	HeaderLength = 12

	ProtocolVersion uint32 = 1

	DefaultMaxBodySize = 16 << 20
)

var ErrShortHeader = errors.New("short header")

// MessageType is the type tag carried in a header.
type MessageType uint32

const (
	// TypeEADD adds one event to a table.
	TypeEADD MessageType = 0x00010000

	ResponseFlag MessageType = 0x80000000
)

func (t MessageType) IsResponse() bool {
	return t&ResponseFlag != 0
}

func (t MessageType) String() string {
	var name string
	switch t &^ ResponseFlag {
	case TypeEADD:
		name = "EADD"
	default:
		name = fmt.Sprintf("0x%08x", uint32(t&^ResponseFlag))
	}
	if t.IsResponse() {
		return name + "/response"
	}
	return name
}

type Header struct {
	Version uint32
	Type    MessageType
	Length  uint32
}

// Encode writes the header into the first HeaderLength bytes of dst.
func (h Header) Encode(dst []byte) {
	_ = dst[HeaderLength-1]
	binary.BigEndian.PutUint32(dst[0:4], h.Version)
	binary.BigEndian.PutUint32(dst[4:8], uint32(h.Type))
	binary.BigEndian.PutUint32(dst[8:12], h.Length)
}

func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderLength)
	h.Encode(b)
	return b, nil
}

// DecodeHeader decodes the first HeaderLength bytes of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLength {
		return Header{}, fmt.Errorf("%w: %d of %d bytes", ErrShortHeader, len(b), HeaderLength)
	}
	return Header{
		Version: binary.BigEndian.Uint32(b[0:4]),
		Type:    MessageType(binary.BigEndian.Uint32(b[4:8])),
		Length:  binary.BigEndian.Uint32(b[8:12]),
	}, nil
}
