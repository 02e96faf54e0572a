// internal/protocol/frame.go
package protocol

import (
	"errors"
	"fmt"
)

// Wire framing constants. Every frame is:
// Head(1) Type(1) Code(1) LenHi(1) LenLo(1) Payload(n) Checksum(1) Tail(1)
// where Checksum = sum(Type..Payload) mod 256.
const (
	FrameHead byte = 0xBB
	FrameTail byte = 0x7E

	// minFrameLen is head + type + code + 2 length bytes + checksum + tail.
	minFrameLen = 7

	// MaxPayloadLen is the largest payload the 2-byte length field can carry.
	MaxPayloadLen = 0xFFFF
)

// Command type and code constants.
const (
	TypeCommand  byte = 0x00
	TypeError    byte = 0x01
	TypeResponse byte = 0x02

	CmdSetRegion          byte = 0x07
	CmdSelectEPC          byte = 0x0C
	CmdSingleInventory    byte = 0x22
	CmdMultiInventory     byte = 0x27
	CmdStopMultiInventory byte = 0x28
	CmdReadMemory         byte = 0x39
	CmdWriteMemory        byte = 0x49
	CmdSetChannel         byte = 0xAB
	CmdSetPower           byte = 0xB6

	errFrameCode byte = 0xFF
)

// Protocol errors surfaced before any bytes are sent.
var (
	ErrPayloadTooLarge = errors.New("payload exceeds 16-bit length field")
	ErrOddLengthData   = errors.New("write data must have even length")
)

// Framing errors. A frame failing any of these is dropped whole; it is
// never repaired.
var (
	ErrTruncatedFrame   = errors.New("truncated frame")
	ErrBadFrameMarker   = errors.New("bad frame start or end marker")
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
)

// Frame is one decoded generic response frame.
type Frame struct {
	Type     byte
	Code     byte
	Payload  []byte
	Checksum byte
}

// BuildFrame constructs one wire frame for the given command type, command
// code and payload.
func BuildFrame(cmdType, cmdCode byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	frame := make([]byte, 0, minFrameLen+len(payload))
	frame = append(frame, FrameHead, cmdType, cmdCode, byte(len(payload)>>8), byte(len(payload)&0xFF))
	frame = append(frame, payload...)
	frame = append(frame, checksum(frame[1:]), FrameTail)
	return frame, nil
}

// DecodeFrame validates and decodes a complete generic frame: markers,
// declared length and checksum must all agree.
func DecodeFrame(buf []byte) (*Frame, error) {
	if len(buf) < minFrameLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncatedFrame, len(buf))
	}
	if buf[0] != FrameHead || buf[len(buf)-1] != FrameTail {
		return nil, ErrBadFrameMarker
	}

	payloadLen := int(buf[3])<<8 | int(buf[4])
	if len(buf) != minFrameLen+payloadLen {
		return nil, fmt.Errorf("%w: declared payload %d, frame %d bytes",
			ErrTruncatedFrame, payloadLen, len(buf))
	}

	sum := checksum(buf[1 : len(buf)-2])
	if sum != buf[len(buf)-2] {
		return nil, fmt.Errorf("%w: computed 0x%02X, frame carries 0x%02X",
			ErrChecksumMismatch, sum, buf[len(buf)-2])
	}

	payload := make([]byte, payloadLen)
	copy(payload, buf[5:5+payloadLen])
	return &Frame{
		Type:     buf[1],
		Code:     buf[2],
		Payload:  payload,
		Checksum: buf[len(buf)-2],
	}, nil
}

// checksum sums all bytes modulo 256.
func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}
