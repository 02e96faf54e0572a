// internal/driver/uhf/memory.go
package uhf

import (
	"context"
	"fmt"

	"rfid-service/internal/protocol"
)

// Memory bank indexes for tag memory operations.
const (
	BankReserved byte = 0x00
	BankEPC      byte = 0x01
	BankTID      byte = 0x02
	BankUser     byte = 0x03
)

// memory responses carry a 7-byte header before the data and a 3-byte
// trailer (checksum, tail and one status byte) after it.
const (
	memoryHeaderLen  = 7
	memoryTrailerLen = 3
)

var zeroPassword = [4]byte{}

// ReadMemory reads count words from the given bank starting at offset.
// A nil password means the default four zero bytes.
func (d *Driver) ReadMemory(ctx context.Context, bank byte, offset, count uint16, password []byte) ([]byte, error) {
	password, err := accessPassword(password)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 0, 9)
	payload = append(payload, bank)
	payload = append(payload, password...)
	payload = append(payload, byte(offset>>8), byte(offset&0xFF))
	payload = append(payload, byte(count>>8), byte(count&0xFF))

	response, err := d.sendMemory(ctx, protocol.CmdReadMemory, payload)
	if err != nil {
		return nil, err
	}

	if len(response) <= memoryHeaderLen+memoryTrailerLen {
		return nil, fmt.Errorf("memory read response too short: %d bytes", len(response))
	}
	data := make([]byte, len(response)-memoryHeaderLen-memoryTrailerLen)
	copy(data, response[memoryHeaderLen:len(response)-memoryTrailerLen])
	return data, nil
}

// WriteMemory writes data to the given bank starting at offset. The word
// count is derived from the byte length, which must be even.
func (d *Driver) WriteMemory(ctx context.Context, bank byte, offset uint16, data, password []byte) error {
	if len(data)%2 != 0 {
		return fmt.Errorf("%w: %d bytes", protocol.ErrOddLengthData, len(data))
	}
	password, err := accessPassword(password)
	if err != nil {
		return err
	}

	count := len(data) / 2
	payload := make([]byte, 0, 9+len(data))
	payload = append(payload, bank)
	payload = append(payload, password...)
	payload = append(payload, byte(offset>>8), byte(offset&0xFF))
	payload = append(payload, byte(count>>8), byte(count&0xFF))
	payload = append(payload, data...)

	_, err = d.sendMemory(ctx, protocol.CmdWriteMemory, payload)
	return err
}

// sendMemory sends a memory command and applies the shared success
// criterion: the response's command-code field must echo the request's.
func (d *Driver) sendMemory(ctx context.Context, cmdCode byte, payload []byte) ([]byte, error) {
	frame, err := protocol.BuildFrame(protocol.TypeCommand, cmdCode, payload)
	if err != nil {
		return nil, err
	}

	response, err := d.Send(ctx, frame, d.config.MaxRetries)
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, ErrNoResponse
	}

	if len(response) > 2 && response[2] == cmdCode {
		return response, nil
	}
	if event, ok := protocol.ParseErrorFrame(response); ok {
		return nil, &ReaderError{Event: *event}
	}
	return nil, fmt.Errorf("unexpected response to command 0x%02X: % X", cmdCode, response)
}

func accessPassword(password []byte) ([]byte, error) {
	if password == nil {
		return zeroPassword[:], nil
	}
	if len(password) != 4 {
		return nil, fmt.Errorf("access password must be 4 bytes, got %d", len(password))
	}
	return password, nil
}
