// internal/driver/uhf/inventory.go
package uhf

import (
	"context"
	"fmt"

	"rfid-service/internal/model"
	"rfid-service/internal/protocol"
)

// SingleInventory performs one single-shot inventory round. It returns
// ErrNoTag when the reader answered with something other than a tag
// report, and ErrNoResponse when the reader did not answer at all.
func (d *Driver) SingleInventory(ctx context.Context) (*model.TagRecord, error) {
	frame, err := protocol.BuildFrame(protocol.TypeCommand, protocol.CmdSingleInventory, nil)
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

	tag, ok := protocol.ParseTagFrame(response)
	if !ok {
		return nil, ErrNoTag
	}
	return tag, nil
}

// StartMultiInventory issues the begin-multi-inventory command for the
// given target count. No response is awaited: in continuous mode the
// reader starts streaming tag reports immediately.
func (d *Driver) StartMultiInventory(ctx context.Context, count int) error {
	if count < 0 || count > 0xFFFF {
		return fmt.Errorf("inventory target count %d out of range", count)
	}

	payload := []byte{0x22, byte(count >> 8), byte(count & 0xFF)}
	frame, err := protocol.BuildFrame(protocol.TypeCommand, protocol.CmdMultiInventory, payload)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.transport.Write(frame)
}

// StopMultiInventory issues the stop-multi-inventory command.
func (d *Driver) StopMultiInventory(ctx context.Context) error {
	frame, err := protocol.BuildFrame(protocol.TypeCommand, protocol.CmdStopMultiInventory, nil)
	if err != nil {
		return err
	}
	_, err = d.Send(ctx, frame, d.config.MaxRetries)
	return err
}
