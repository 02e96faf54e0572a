// internal/driver/uhf/commands.go
package uhf

import (
	"context"
	"encoding/hex"
	"fmt"

	"rfid-service/internal/model"
	"rfid-service/internal/protocol"
)

// selectPrefix is the fixed prefix of the select-EPC payload: target,
// action, membank pointer and a zero truncation flag, followed by the EPC
// length and the EPC bytes.
var selectPrefix = []byte{0x00, 0x00, 0x20, 0x00}

// SetRegion configures the regulatory region. Unsupported regions are
// rejected before any bytes are sent.
func (d *Driver) SetRegion(ctx context.Context, region model.Region) error {
	payload, err := region.Payload()
	if err != nil {
		return err
	}
	return d.sendConfig(ctx, protocol.CmdSetRegion, payload)
}

// SetChannel configures the RF channel index.
func (d *Driver) SetChannel(ctx context.Context, channel int) error {
	if err := model.ValidateChannel(channel); err != nil {
		return err
	}
	return d.sendConfig(ctx, protocol.CmdSetChannel, []byte{byte(channel)})
}

// SetPower configures RF output power from the supported dBm table.
func (d *Driver) SetPower(ctx context.Context, level model.PowerLevel) error {
	payload, err := level.Payload()
	if err != nil {
		return err
	}
	return d.sendConfig(ctx, protocol.CmdSetPower, payload)
}

// SelectEPC installs an EPC filter so subsequent inventory rounds only
// report the matching tag.
func (d *Driver) SelectEPC(ctx context.Context, epcHex string) error {
	epc, err := hex.DecodeString(epcHex)
	if err != nil {
		return fmt.Errorf("invalid EPC hex %q: %w", epcHex, err)
	}
	if len(epc) == 0 || len(epc) > 0xFF {
		return fmt.Errorf("EPC filter length %d out of range", len(epc))
	}

	payload := make([]byte, 0, len(selectPrefix)+1+len(epc))
	payload = append(payload, selectPrefix...)
	payload = append(payload, byte(len(epc)))
	payload = append(payload, epc...)

	return d.sendConfig(ctx, protocol.CmdSelectEPC, payload)
}

func (d *Driver) sendConfig(ctx context.Context, cmdCode byte, payload []byte) error {
	frame, err := protocol.BuildFrame(protocol.TypeCommand, cmdCode, payload)
	if err != nil {
		return err
	}
	_, err = d.Send(ctx, frame, d.config.MaxRetries)
	return err
}
