package ethframe

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame size limits and the FIFO header layout.
//
// Every frame crossing a FIFO register is prefixed by a 4-byte header:
// byte 0 carries the destination-port selector in bits 7-5 and the
// frame-valid flag in bit 0; byte 1 is reserved; bytes 2-3 carry the payload
// length, big endian. The layout matches the chip's documented format
// bit-for-bit.
const (
	HeaderLen     = 4
	MinPayloadLen = 60
	MaxPayloadLen = 1518

	hdrValidFlag = 0x01
	hdrPortShift = 5
)

// Error conditions.
var (
	ErrHeaderShort = errors.New("buffer shorter than FIFO header")
	ErrHeaderFlag  = errors.New("FIFO header valid flag not set")
	ErrLengthRange = errors.New("payload length out of range")
	ErrTruncated   = errors.New("buffer shorter than header length field")
)

// EncodedLen returns the FIFO byte count of a payload of length n after
// header prepend and minimum-size padding.
func EncodedLen(n int) int {
	if n < MinPayloadLen {
		n = MinPayloadLen
	}
	return HeaderLen + n
}

// AppendHeader appends the FIFO header for a payload of length n destined to port.
func AppendHeader(b []byte, port PortID, n int) []byte {
	b = append(b, byte(port)<<hdrPortShift|hdrValidFlag, 0x00)
	return binary.BigEndian.AppendUint16(b, uint16(n))
}

// Encode builds the FIFO bytes of a frame: header, payload, and zero padding
// up to the minimum frame size. The header length field records the unpadded
// payload length.
func Encode(port PortID, payload []byte) ([]byte, error) {
	if len(payload) < 1 || len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d", ErrLengthRange, len(payload))
	}

	b := AppendHeader(make([]byte, 0, EncodedLen(len(payload))), port, len(payload))
	b = append(b, payload...)
	for len(b) < HeaderLen+MinPayloadLen {
		b = append(b, 0x00)
	}
	return b, nil
}

// DecodeHeader parses the FIFO header.
func DecodeHeader(b []byte) (port PortID, length int, e error) {
	if len(b) < HeaderLen {
		return 0, 0, fmt.Errorf("%w: %d bytes", ErrHeaderShort, len(b))
	}
	if b[0]&hdrValidFlag == 0 {
		return 0, 0, ErrHeaderFlag
	}
	port = PortID(b[0] >> hdrPortShift)
	length = int(binary.BigEndian.Uint16(b[2:4]))
	if length < 1 || length > MaxPayloadLen {
		return 0, 0, fmt.Errorf("%w: %d", ErrLengthRange, length)
	}
	return port, length, nil
}

// Decode parses FIFO bytes into the original payload, dropping padding.
func Decode(b []byte) (port PortID, payload []byte, e error) {
	port, length, e := DecodeHeader(b)
	if e != nil {
		return 0, nil, e
	}
	if len(b) < HeaderLen+length {
		return 0, nil, fmt.Errorf("%w: have %d want %d", ErrTruncated, len(b)-HeaderLen, length)
	}
	return port, b[HeaderLen : HeaderLen+length], nil
}
