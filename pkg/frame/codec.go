// Package frame implements FRAME, a small length-prefixed request/reply
// protocol served by the generic server core.
//
// Wire format (big endian):
//
//	+------+------+-------+--------+----------------+-----+------+
//	| 0xD7 | 0x0F | flags | keyLen | bodyLen uint32 | key | body |
//	+------+------+-------+--------+----------------+-----+------+
//
// The key selects the servlet and is encoded with the server charset.
// Requests set FlagClose to ask the server to close the connection after the
// reply; replies set FlagError when the body carries an error message.
// A client sends one request and waits for its reply before sending the next.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	magic0 = 0xD7
	magic1 = 0x0F

	// HeaderSize is the fixed header length.
	HeaderSize = 8

	// MaxKeyLen is the longest encoded key.
	MaxKeyLen = math.MaxUint8
)

// Flags carried in the third header byte.
const (
	FlagClose byte = 1 << 0
	FlagError byte = 1 << 7
)

var (
	ErrShortHeader  = errors.New("frame: short header")
	ErrBadMagic     = errors.New("frame: bad magic")
	ErrKeyTooLong   = errors.New("frame: key too long")
	ErrBodyTooLarge = errors.New("frame: body too large")
)

// Header is the fixed part of a frame.
type Header struct {
	Flags   byte
	KeyLen  int
	BodyLen int
}

// ParseHeader decodes the fixed header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	if b[0] != magic0 || b[1] != magic1 {
		return Header{}, fmt.Errorf("%w: % x", ErrBadMagic, b[:2])
	}
	return Header{
		Flags:   b[2],
		KeyLen:  int(b[3]),
		BodyLen: int(binary.BigEndian.Uint32(b[4:8])),
	}, nil
}

// Size is the full frame length described by h.
func (h Header) Size() int {
	return HeaderSize + h.KeyLen + h.BodyLen
}

// FrameSize is the encoded length of a frame with the given key and body.
func FrameSize(key, body []byte) int {
	return HeaderSize + len(key) + len(body)
}

// AppendFrame appends an encoded frame to dst.
func AppendFrame(dst []byte, flags byte, key, body []byte) ([]byte, error) {
	if len(key) > MaxKeyLen {
		return dst, fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(key))
	}
	if uint64(len(body)) > math.MaxUint32 {
		return dst, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body))
	}

	dst = append(dst, magic0, magic1, flags, byte(len(key)))
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(body)))
	dst = append(dst, key...)
	return append(dst, body...), nil
}
